package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pable/go-smash-metrics/internal/model"
)

// WriteCSV writes every derived column for downstream analysis. Undefined
// metrics are left as empty cells, never zeros.
func WriteCSV(w io.Writer, players []model.PlayerAggregate) error {
	cw := csv.NewWriter(w)
	header := []string{
		"player_id", "gamer_tag", "state", "state_inferred", "state_confidence",
		"events", "tournaments", "sets_played", "set_wins", "set_losses",
		"win_rate", "weighted_win_rate", "seed_delta", "opponent_strength", "upset_rate",
		"character_usage_rate", "character_sets", "character_win_rate",
		"character_weighted_win_rate", "assumed_main",
		"activity_score", "avg_event_entrants", "max_event_entrants", "last_event_at",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, p := range players {
		lastEvent := ""
		if !p.LastEventAt.IsZero() {
			lastEvent = p.LastEventAt.Format("2006-01-02")
		}
		row := []string{
			p.PlayerID,
			p.GamerTag,
			p.State,
			strconv.FormatBool(p.StateInferred),
			floatCell(&p.StateConfidence),
			strconv.Itoa(p.Events),
			strconv.Itoa(p.TournamentsPlayed),
			strconv.Itoa(p.SetsPlayed),
			strconv.Itoa(p.SetWins),
			strconv.Itoa(p.SetLosses),
			floatCell(p.WinRate),
			floatCell(p.WeightedWinRate),
			floatCell(p.SeedDelta),
			floatCell(p.OpponentStrength),
			floatCell(p.UpsetRate),
			floatCell(p.CharacterUsageRate),
			strconv.Itoa(p.CharacterSets),
			floatCell(p.CharacterWinRate),
			floatCell(p.CharacterWeightedWinRate),
			strconv.FormatBool(p.AssumedMain),
			strconv.FormatFloat(p.ActivityScore, 'f', -1, 64),
			floatCell(p.AvgEventEntrants),
			strconv.Itoa(p.MaxEventEntrants),
			lastEvent,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", p.PlayerID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
