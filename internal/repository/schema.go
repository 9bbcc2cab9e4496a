package repository

import "github.com/ortaieb/scavenger-hunt-game/pkg/db"

// ExpectedSchemas lists the tables the repositories query, for the startup
// schema guard.
func ExpectedSchemas() []db.TableSchema {
	return []db.TableSchema{
		{
			Name: "challenge_versions",
			Columns: []db.Column{
				{Name: "version_id", DataType: "char"},
				{Name: "challenge_id", DataType: "bigint"},
				{Name: "challenge_name", DataType: "varchar"},
				{Name: "planned_start_time", DataType: "datetime"},
				{Name: "payload", DataType: "json"},
				{Name: "validity_start", DataType: "datetime"},
				{Name: "validity_end", DataType: "datetime", Nullable: true},
				{Name: "current_challenge_id", DataType: "bigint", Nullable: true},
				{Name: "created_at", DataType: "datetime"},
				{Name: "updated_at", DataType: "datetime"},
			},
		},
		{
			Name: "challenge_participants",
			Columns: []db.Column{
				{Name: "participant_id", DataType: "char"},
				{Name: "challenge_id", DataType: "bigint"},
				{Name: "user_id", DataType: "bigint"},
				{Name: "participant_nickname", DataType: "varchar", Nullable: true},
				{Name: "current_waypoint_id", DataType: "int", Nullable: true},
				{Name: "current_state", DataType: "enum"},
				{Name: "joined_at", DataType: "datetime"},
				{Name: "last_updated", DataType: "datetime"},
			},
		},
	}
}
