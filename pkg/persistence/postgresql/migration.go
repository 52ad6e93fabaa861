package postgresql

// migrations returns the ordered schema migrations for the journey engine.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS journey_definitions (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				name TEXT NOT NULL,
				trigger_type TEXT NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT FALSE,
				nodes JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_journey_definitions_trigger
				ON journey_definitions (trigger_type) WHERE enabled;

			CREATE TABLE IF NOT EXISTS journey_instances (
				id TEXT PRIMARY KEY,
				journey_id TEXT NOT NULL,
				subject_id TEXT NOT NULL,
				status TEXT NOT NULL,
				current_node_id TEXT,
				step_memory JSONB NOT NULL DEFAULT '{}',
				context JSONB NOT NULL DEFAULT '{}',
				reference_date TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_journey_instances_live
				ON journey_instances (journey_id, subject_id)
				WHERE status IN ('active', 'waiting');

			CREATE TABLE IF NOT EXISTS execution_log (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL,
				node_id TEXT NOT NULL,
				node_type TEXT NOT NULL,
				outcome TEXT NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				result_data JSONB,
				error_message TEXT,
				seq BIGSERIAL
			);

			CREATE INDEX IF NOT EXISTS idx_execution_log_instance
				ON execution_log (instance_id, seq);

			CREATE TABLE IF NOT EXISTS scheduled_work (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL,
				node_id TEXT,
				kind TEXT NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_scheduled_work_due
				ON scheduled_work (kind, due_at);
		`,
	}
}
