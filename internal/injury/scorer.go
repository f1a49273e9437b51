// Package injury converts injury reports into per-team impact records.
package injury

import (
	"math"
	"sort"
	"strings"

	"github.com/hoopcast/forecast-api/internal/models"
)

const (
	unknownPlayerImportance = 0.5
	noRotationImportance    = 1.0

	pointsPerImportance  = 10.0
	minutesPerImportance = 12.0

	zeroMinuteReason = "Played 0 minutes (possible injury)"
)

// Rotation maps player id to recent averages.
type Rotation map[int]models.RotationPlayer

// Importance weights a player by minutes and scoring, in [0.2, 2.0].
// Players missing from the rotation get 0.5; a nil rotation gives 1.0.
func Importance(playerID int, rotation Rotation) float64 {
	if rotation == nil {
		return noRotationImportance
	}
	p, ok := rotation[playerID]
	if !ok {
		return unknownPlayerImportance
	}
	minScore := clip(p.Minutes/38, 0.1, 1.5)
	ptsScore := clip(p.Points/25, 0.1, 1.5)
	return clip(0.6*minScore+0.4*ptsScore, 0.2, 2.0)
}

// Impacts is a per-team impact table. Absent teams have zero impact.
type Impacts map[int]models.InjuryImpact

// Impact returns a team's record, zero when the team is absent.
func (im Impacts) Impact(teamID int) models.InjuryImpact {
	return im[teamID]
}

// Score aggregates "Out" entries by team. Other statuses are ignored.
// With a nil rotation every Out entry weighs 1.0, named or not.
func Score(report []models.InjuryReportEntry, rotation Rotation) Impacts {
	out := make(Impacts)
	for _, e := range report {
		if e.Status != models.InjuryStatusOut {
			continue
		}
		imp := out[e.TeamID]
		imp.ImpactScore += Importance(e.PlayerID, rotation)
		imp.NumPlayersOut++
		out[e.TeamID] = imp
	}
	for team, imp := range out {
		imp.PointsLost = imp.ImpactScore * pointsPerImportance
		imp.MinutesLost = imp.ImpactScore * minutesPerImportance
		out[team] = imp
	}
	return out
}

// RotationFromLogs averages minutes and points per player over the given
// logs, keeping players whose average minutes reach minMinutes. Each
// player's team is taken from their latest game.
func RotationFromLogs(logs []models.PlayerGameRow, minMinutes float64) Rotation {
	type acc struct {
		p                     models.RotationPlayer
		min, pts              float64
		nMin, nPts            int
		lastPlayed, lastTimed int
	}
	sums := make(map[int]*acc)
	for i := range logs {
		r := &logs[i]
		a, ok := sums[r.PlayerID]
		if !ok {
			a = &acc{p: models.RotationPlayer{PlayerID: r.PlayerID}, lastPlayed: -1, lastTimed: -1}
			sums[r.PlayerID] = a
		}
		if a.lastPlayed < 0 || !r.GameDate.Before(logs[a.lastPlayed].GameDate) {
			a.lastPlayed = i
			a.p.PlayerName = r.PlayerName
			a.p.TeamID = r.TeamID
		}
		if r.Minutes.Defined() {
			a.min += float64(r.Minutes)
			a.nMin++
			if a.lastTimed < 0 || !r.GameDate.Before(logs[a.lastTimed].GameDate) {
				a.lastTimed = i
				a.p.LastMinutes = float64(r.Minutes)
			}
		}
		if r.Points.Defined() {
			a.pts += float64(r.Points)
			a.nPts++
		}
		a.p.Games++
	}

	out := make(Rotation)
	for id, a := range sums {
		if a.nMin == 0 {
			continue
		}
		a.p.Minutes = a.min / float64(a.nMin)
		if a.nPts > 0 {
			a.p.Points = a.pts / float64(a.nPts)
		}
		if a.p.Minutes < minMinutes {
			continue
		}
		out[id] = a.p
	}
	return out
}

// ZeroMinuteOuts reports rotation players who logged zero minutes in their
// latest timed game as Out.
func ZeroMinuteOuts(rotation Rotation) []models.InjuryReportEntry {
	var out []models.InjuryReportEntry
	for _, p := range rotation {
		if p.LastMinutes != 0 {
			continue
		}
		out = append(out, models.InjuryReportEntry{
			TeamID:     p.TeamID,
			PlayerID:   p.PlayerID,
			PlayerName: p.PlayerName,
			Status:     models.InjuryStatusOut,
			Reason:     zeroMinuteReason,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Dedupe keeps the first entry for each (team, player name) pair. Names
// compare case-insensitively; entries without a name key on player id.
func Dedupe(report []models.InjuryReportEntry) []models.InjuryReportEntry {
	type key struct {
		team int
		name string
		id   int
	}
	seen := make(map[key]struct{}, len(report))
	out := make([]models.InjuryReportEntry, 0, len(report))
	for _, e := range report {
		k := key{team: e.TeamID, name: strings.ToLower(strings.TrimSpace(e.PlayerName))}
		if k.name == "" {
			k.id = e.PlayerID
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Resolve fills PlayerID on report entries by matching names against the
// rotation: exact name first, then case-insensitive containment either way.
// Entries that already carry an id are kept and unresolved entries are
// dropped. Team ids of resolved entries default to the rotation player's
// team, and two entries resolving to the same player count once.
//
// With a nil rotation there is nothing to match against, so every entry is
// kept as is apart from (team, name) duplicates.
func Resolve(report []models.InjuryReportEntry, rotation Rotation) []models.InjuryReportEntry {
	report = Dedupe(report)
	if rotation == nil {
		return report
	}

	byName := make(map[string]models.RotationPlayer, len(rotation))
	players := make([]models.RotationPlayer, 0, len(rotation))
	for _, p := range rotation {
		byName[p.PlayerName] = p
		players = append(players, p)
	}
	// Deterministic containment matching.
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })

	type key struct{ team, id int }
	seen := make(map[key]struct{}, len(report))
	var out []models.InjuryReportEntry
	for _, e := range report {
		if e.PlayerID == 0 {
			p, ok := byName[e.PlayerName]
			if !ok {
				p, ok = containsMatch(e.PlayerName, players)
			}
			if !ok {
				continue
			}
			e.PlayerID = p.PlayerID
			if e.TeamID == 0 {
				e.TeamID = p.TeamID
			}
		}
		k := key{e.TeamID, e.PlayerID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

func containsMatch(name string, players []models.RotationPlayer) (models.RotationPlayer, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return models.RotationPlayer{}, false
	}
	for _, p := range players {
		full := strings.ToLower(p.PlayerName)
		if full == "" {
			continue
		}
		if strings.Contains(full, needle) || strings.Contains(needle, full) {
			return p, true
		}
	}
	return models.RotationPlayer{}, false
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
