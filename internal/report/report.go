// Package report renders player aggregates as terminal tables and CSV.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pable/go-smash-metrics/internal/model"
)

// PrintPlayerTable writes the player metrics overview table.
func PrintPlayerTable(w io.Writer, players []model.PlayerAggregate, targetCharacter string) {
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignRight},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))

	headers := []any{
		"PLAYER", "STATE", "EVENTS", "SETS", "W", "L",
		"WIN%", "WWIN%", "SEED+/-", "OPP_STR", "UPSET%", "ACT",
	}
	if targetCharacter != "" {
		headers = append(headers, "CHAR%", "CHAR_WIN%")
	}
	table.Header(headers...)

	for _, p := range players {
		state := p.State
		if p.StateInferred && state != "" {
			state += "*"
		}
		row := []any{
			p.GamerTag,
			state,
			strconv.Itoa(p.Events),
			strconv.Itoa(p.SetsPlayed),
			strconv.Itoa(p.SetWins),
			strconv.Itoa(p.SetLosses),
			pct(p.WinRate),
			pct(p.WeightedWinRate),
			signed(p.SeedDelta),
			dec(p.OpponentStrength),
			pct(p.UpsetRate),
			fmt.Sprintf("%.1f", p.ActivityScore),
		}
		if targetCharacter != "" {
			charWin := pct(p.CharacterWinRate)
			if p.AssumedMain && charWin != "—" {
				charWin += "*"
			}
			row = append(row, pct(p.CharacterUsageRate), charWin)
		}
		table.Append(row...)
	}
	table.Render()

	if targetCharacter != "" {
		fmt.Fprintln(w, "  * assumed main (no reported sets on the character)")
	}
}

// PrintTournamentTable writes the stored-tournament listing.
func PrintTournamentTable(w io.Writer, tournaments []model.TournamentSummary) {
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignRight},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))

	table.Header("DATE", "NAME", "STATE", "ATTENDEES", "EVENTS")
	for _, t := range tournaments {
		date := "—"
		if !t.StartAt.IsZero() {
			date = t.StartAt.Format("2006-01-02")
		}
		table.Append(
			date,
			t.Name,
			t.State,
			strconv.Itoa(t.NumAttendees),
			strconv.Itoa(t.EventCount),
		)
	}
	table.Render()
}

// pct formats a rate pointer as a percentage, "—" when undefined.
func pct(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.0f%%", *v*100)
}

// dec formats a pointer with two decimals, "—" when undefined.
func dec(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f", *v)
}

// signed formats a delta with an explicit sign, "—" when undefined.
func signed(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%+.1f", *v)
}
