package models

// InjuryStatusOut is the only report status that counts toward impact.
const InjuryStatusOut = "Out"

// InjuryReportEntry is one line of an injury report with team and player
// already resolved to stats API ids.
type InjuryReportEntry struct {
	TeamID     int    `json:"team_id"`
	PlayerID   int    `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// InjuryImpact summarizes how much a team loses to "Out" players.
// The zero value means no impact.
type InjuryImpact struct {
	PointsLost    float64 `json:"points_lost"`
	MinutesLost   float64 `json:"minutes_lost"`
	NumPlayersOut int     `json:"num_players_out"`
	ImpactScore   float64 `json:"impact_score"`
}

// RotationPlayer is a player's recent averages used to weight injuries.
type RotationPlayer struct {
	PlayerID   int     `json:"player_id"`
	PlayerName string  `json:"player_name"`
	TeamID     int     `json:"team_id"`
	Minutes    float64 `json:"min"`
	Points     float64 `json:"pts"`
	Games      int     `json:"games"`

	// LastMinutes is the player's minutes in their latest timed game.
	LastMinutes float64 `json:"last_min"`
}
