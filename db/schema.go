package db

// schema is the idempotent statement list applied by Migrate. It mirrors db/migrations so that
// deployments without golang-migrate state converge on the same tables.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS initiation_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		community_id TEXT NOT NULL,
		ritual_channel_id TEXT NOT NULL DEFAULT '',
		ritual_message_id TEXT NOT NULL DEFAULT '',
		joined_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'Pending',
		chosen_path TEXT,
		completed_at TIMESTAMPTZ,
		expired_at TIMESTAMPTZ,
		CONSTRAINT initiation_sessions_status_check CHECK (status IN ('Pending', 'Completed', 'Expired'))
	)`,
	// At most one pending session per member and community.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_initiation_pending ON initiation_sessions(user_id, community_id) WHERE status = 'Pending'`,
	`CREATE INDEX IF NOT EXISTS idx_initiation_user ON initiation_sessions(user_id, community_id)`,
	`CREATE INDEX IF NOT EXISTS idx_initiation_status_joined ON initiation_sessions(status, joined_at)`,
	`CREATE TABLE IF NOT EXISTS spam_trackers (
		user_id TEXT NOT NULL,
		community_id TEXT NOT NULL,
		recent_message_times JSONB NOT NULL DEFAULT '[]',
		score INTEGER NOT NULL DEFAULT 0,
		last_check TIMESTAMPTZ,
		slow_mode_active BOOLEAN NOT NULL DEFAULT FALSE,
		slow_mode_until TIMESTAMPTZ,
		PRIMARY KEY (user_id, community_id)
	)`,
	`CREATE TABLE IF NOT EXISTS moderation_log (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		community_id TEXT NOT NULL,
		action TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		automated BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_modlog_user_action ON moderation_log(user_id, community_id, action, category)`,
	`CREATE TABLE IF NOT EXISTS user_messages (
		id BIGSERIAL PRIMARY KEY,
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		community_id TEXT NOT NULL,
		channel_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		content_hash BIGINT NOT NULL DEFAULT 0,
		has_link BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		flagged BOOLEAN NOT NULL DEFAULT FALSE,
		flag_reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_messages_user_time ON user_messages(user_id, community_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_user_messages_message ON user_messages(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_messages_hash ON user_messages(community_id, content_hash)`,
	`CREATE TABLE IF NOT EXISTS user_activity (
		user_id TEXT NOT NULL,
		community_id TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0,
		warning_count INTEGER NOT NULL DEFAULT 0,
		slow_mode_count INTEGER NOT NULL DEFAULT 0,
		join_count INTEGER NOT NULL DEFAULT 0,
		leave_count INTEGER NOT NULL DEFAULT 0,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, community_id)
	)`,
	`CREATE TABLE IF NOT EXISTS game_activity (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		community_id TEXT NOT NULL,
		game TEXT NOT NULL,
		source TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_game_activity_user ON game_activity(user_id, community_id, source, ended_at)`,
	`CREATE TABLE IF NOT EXISTS live_stream_status (
		platform TEXT PRIMARY KEY,
		current_video_id TEXT NOT NULL DEFAULT '',
		is_live BOOLEAN NOT NULL DEFAULT FALSE,
		live_started_at TIMESTAMPTZ,
		announcement_sent BOOLEAN NOT NULL DEFAULT FALSE,
		last_checked_at TIMESTAMPTZ
	)`,
}
