package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
)

func writePlayerFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "players.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCSVFileProvider_GetPlayers(t *testing.T) {
	path := writePlayerFile(t, `Name,ID,Club,Position,Position Name,Average points,Total points,Tries
Antoine Dupont,201,France,9,Scrum Half,58.2,233,4
Maro Itoje,202,England,11,Second Row,44,176,1
Mystery Signing,203,Italy,99,,31.5,63,not-a-number
,204,Wales,12,Prop,12,24,0
`)

	provider := NewCSVFileProvider(path, logrus.New())
	players, err := provider.GetPlayers(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, players, 4)

	dupont := players[0]
	assert.Equal(t, "201", dupont.ID)
	assert.Equal(t, "Antoine Dupont", dupont.Name)
	assert.Equal(t, "France", dupont.Club)
	assert.Equal(t, rugby.PositionScrumHalf, dupont.Position)
	assert.Equal(t, 58.2, dupont.AveragePoints)
	assert.Equal(t, 233.0, dupont.TotalPoints)
	assert.Equal(t, 4.0, dupont.Criteria["Tries"])
	assert.Equal(t, "csv", dupont.Source)

	// Empty display name falls back to the numeric code; 99 is unmapped.
	assert.Equal(t, rugby.PositionUnknown, players[2].Position)
	assert.Equal(t, 0.0, players[2].Criteria["Tries"], "unparseable stat reads as 0")

	// A missing name is tolerated as long as the ID is present.
	assert.Equal(t, "204", players[3].ID)
	assert.Equal(t, "", players[3].Name)
}

func TestCSVFileProvider_SkipsRowsWithoutID(t *testing.T) {
	path := writePlayerFile(t, `ID,Name,Club,Position Name,Average points
301,Finn Russell,Scotland,Fly Half,47.1
,Ghost Player,Scotland,Fly Half,99
`)

	provider := NewCSVFileProvider(path, logrus.New())
	players, err := provider.GetPlayers(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "Finn Russell", players[0].Name)
}

func TestCSVFileProvider_MissingColumns(t *testing.T) {
	path := writePlayerFile(t, `Name,Average points
Someone,10
`)

	provider := NewCSVFileProvider(path, logrus.New())
	_, err := provider.GetPlayers(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"id"`)
}

func TestCSVFileProvider_MissingFile(t *testing.T) {
	provider := NewCSVFileProvider(filepath.Join(t.TempDir(), "nope.csv"), logrus.New())
	_, err := provider.GetPlayers(context.Background(), 0)
	require.Error(t, err)
}
