package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/models"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/providers"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/config"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|seed [pool.csv]]")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	command := os.Args[1]

	switch command {
	case "up":
		if err := runMigrations(db); err != nil {
			logrus.Fatalf("Failed to run migrations: %v", err)
		}
		logrus.Info("Migrations completed successfully")

	case "down":
		if err := dropTables(db); err != nil {
			logrus.Fatalf("Failed to drop tables: %v", err)
		}
		logrus.Info("Tables dropped successfully")

	case "seed":
		if len(os.Args) > 2 {
			if err := seedFromCSV(db, os.Args[2]); err != nil {
				logrus.Fatalf("Failed to seed from CSV: %v", err)
			}
		} else if err := seedData(db); err != nil {
			logrus.Fatalf("Failed to seed data: %v", err)
		}
		logrus.Info("Data seeded successfully")

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

func runMigrations(db *database.DB) error {
	// Auto migrate all models
	if err := db.AutoMigrate(
		&models.Player{},
		&models.Squad{},
		&models.SquadPlayer{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	// Create indexes
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_players_club_position ON players(club, position)",
		"CREATE INDEX IF NOT EXISTS idx_players_average_points ON players(average_points DESC)",
		"CREATE INDEX IF NOT EXISTS idx_squads_created_at ON squads(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_squad_players_player ON squad_players(player_id)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func dropTables(db *database.DB) error {
	// Drop tables in reverse order to handle foreign key constraints
	tables := []string{
		"squad_players",
		"squads",
		"players",
	}

	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	return nil
}

// seedFromCSV loads a player pool exported as CSV, the offline alternative to
// the live stats API.
func seedFromCSV(db *database.DB, path string) error {
	provider := providers.NewCSVFileProvider(path, logrus.StandardLogger())
	roster := services.NewRosterService(db, nil, provider, nil, logrus.StandardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := roster.Sync(ctx, 0, false)
	if err != nil {
		return err
	}

	logrus.Infof("Seeded %d players from %s (%d created, %d updated)",
		result.Fetched, path, result.Created, result.Updated)
	return nil
}

func seedData(db *database.DB) error {
	type seedPlayer struct {
		ID       string
		Name     string
		Club     string
		Position rugby.Position
		Average  float64
	}

	// A realistic mid-championship pool: three rounds played, scores are
	// fantasy averages per round.
	samplePlayers := []seedPlayer{
		// Props
		{"82001", "Andrew Porter", "Ireland", rugby.PositionProp, 37.2},
		{"82002", "Tadhg Furlong", "Ireland", rugby.PositionProp, 35.1},
		{"82003", "Ellis Genge", "England", rugby.PositionProp, 32.4},
		{"82004", "Zander Fagerson", "Scotland", rugby.PositionProp, 31.8},
		{"82005", "Danilo Fischetti", "Italy", rugby.PositionProp, 25.6},
		// Hookers
		{"82010", "Dan Sheehan", "Ireland", rugby.PositionHooker, 48.3},
		{"82011", "Peato Mauvaka", "France", rugby.PositionHooker, 40.1},
		{"82012", "Dewi Lake", "Wales", rugby.PositionHooker, 35.4},
		{"82013", "Jamie George", "England", rugby.PositionHooker, 33.7},
		// Second rows
		{"82020", "Tadhg Beirne", "Ireland", rugby.PositionSecondRow, 45.9},
		{"82021", "Maro Itoje", "England", rugby.PositionSecondRow, 41.5},
		{"82022", "Thibaud Flament", "France", rugby.PositionSecondRow, 38.4},
		{"82023", "Federico Ruzza", "Italy", rugby.PositionSecondRow, 36.2},
		{"82024", "Scott Cummings", "Scotland", rugby.PositionSecondRow, 28.7},
		{"82025", "Will Rowlands", "Wales", rugby.PositionSecondRow, 27.9},
		// Back rows
		{"82030", "Caelan Doris", "Ireland", rugby.PositionBackRow, 52.6},
		{"82031", "Gregory Alldritt", "France", rugby.PositionBackRow, 47.8},
		{"82032", "Ben Earl", "England", rugby.PositionBackRow, 46.1},
		{"82033", "Jac Morgan", "Wales", rugby.PositionBackRow, 44.7},
		{"82034", "Michele Lamaro", "Italy", rugby.PositionBackRow, 43.9},
		{"82035", "Rory Darge", "Scotland", rugby.PositionBackRow, 39.3},
		// Scrum halves
		{"82040", "Antoine Dupont", "France", rugby.PositionScrumHalf, 68.5},
		{"82041", "Jamison Gibson-Park", "Ireland", rugby.PositionScrumHalf, 49.2},
		{"82042", "Tomos Williams", "Wales", rugby.PositionScrumHalf, 41.1},
		{"82043", "Ben White", "Scotland", rugby.PositionScrumHalf, 36.8},
		// Fly halves
		{"82050", "Finn Russell", "Scotland", rugby.PositionFlyHalf, 51.4},
		{"82051", "Sam Prendergast", "Ireland", rugby.PositionFlyHalf, 44.6},
		{"82052", "Fin Smith", "England", rugby.PositionFlyHalf, 42.3},
		{"82053", "Paolo Garbisi", "Italy", rugby.PositionFlyHalf, 38.9},
		// Centres
		{"82060", "Tommaso Menoncello", "Italy", rugby.PositionCentre, 51.2},
		{"82061", "Huw Jones", "Scotland", rugby.PositionCentre, 49.8},
		{"82062", "Bundee Aki", "Ireland", rugby.PositionCentre, 43.5},
		{"82063", "Ollie Lawrence", "England", rugby.PositionCentre, 41.8},
		{"82064", "Gael Fickou", "France", rugby.PositionCentre, 37.6},
		// Back three
		{"82070", "Louis Bielle-Biarrey", "France", rugby.PositionBackThree, 62.3},
		{"82071", "Damian Penaud", "France", rugby.PositionBackThree, 58.7},
		{"82072", "James Lowe", "Ireland", rugby.PositionBackThree, 54.1},
		{"82073", "Duhan van der Merwe", "Scotland", rugby.PositionBackThree, 52.9},
		{"82074", "Tommy Freeman", "England", rugby.PositionBackThree, 50.6},
		{"82075", "Blair Kinghorn", "Scotland", rugby.PositionBackThree, 46.4},
		{"82076", "Monty Ioane", "Italy", rugby.PositionBackThree, 40.2},
		{"82077", "Blair Murray", "Wales", rugby.PositionBackThree, 38.6},
	}

	codeByPosition := map[rugby.Position]string{
		rugby.PositionBackThree: "6",
		rugby.PositionCentre:    "7",
		rugby.PositionFlyHalf:   "8",
		rugby.PositionScrumHalf: "9",
		rugby.PositionBackRow:   "10",
		rugby.PositionSecondRow: "11",
		rugby.PositionProp:      "12",
		rugby.PositionHooker:    "13",
	}

	now := time.Now()
	rows := make([]models.Player, 0, len(samplePlayers))
	for _, p := range samplePlayers {
		rows = append(rows, models.Player{
			ExternalID:    p.ID,
			Name:          p.Name,
			Club:          p.Club,
			Position:      string(p.Position),
			PositionCode:  codeByPosition[p.Position],
			AveragePoints: p.Average,
			TotalPoints:   math.Round(p.Average*3*10) / 10,
			Source:        "seed",
			LastSyncedAt:  now,
		})
	}

	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to create players: %w", err)
	}

	logrus.Infof("Seeded %d players across %d clubs", len(rows), len(rugby.Clubs))
	return nil
}
