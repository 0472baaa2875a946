package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Durable per-thread conversation state, single writer per thread.
			CREATE TABLE conversation_states (
				thread_id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				tenant_id VARCHAR(255),
				recent_messages JSONB NOT NULL DEFAULT '[]',
				tokens_prompt BIGINT NOT NULL DEFAULT 0,
				tokens_completion BIGINT NOT NULL DEFAULT 0,
				tokens_total BIGINT NOT NULL DEFAULT 0,
				current_stage VARCHAR(255),
				completed_stages JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_activity TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_conversation_states_user_id ON conversation_states(user_id);
			CREATE INDEX idx_conversation_states_tenant_id ON conversation_states(tenant_id);
			CREATE INDEX idx_conversation_states_last_activity ON conversation_states(last_activity);

			-- Admin-managed stage pipeline configuration.
			CREATE TABLE stage_configs (
				stage_id VARCHAR(255) PRIMARY KEY,
				stage_name VARCHAR(255) NOT NULL,
				stage_type VARCHAR(255) NOT NULL,
				position INT NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT true,
				is_required BOOLEAN NOT NULL DEFAULT false,
				dry_run BOOLEAN NOT NULL DEFAULT false,
				dependencies JSONB NOT NULL DEFAULT '[]',
				config JSONB DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_stage_configs_position ON stage_configs(position);
			CREATE INDEX idx_stage_configs_is_active ON stage_configs(is_active);

			-- Append-only stage execution audit log.
			CREATE TABLE stage_execution_records (
				id UUID PRIMARY KEY,
				thread_id VARCHAR(255) NOT NULL,
				stage_id VARCHAR(255) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('completed', 'failed', 'skipped')),
				duration_ms BIGINT NOT NULL DEFAULT 0,
				tokens_in BIGINT NOT NULL DEFAULT 0,
				tokens_out BIGINT NOT NULL DEFAULT 0,
				cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
				retry_count INT NOT NULL DEFAULT 0,
				dry_run BOOLEAN NOT NULL DEFAULT false,
				input_data JSONB,
				output_data JSONB,
				error_message TEXT
			);

			CREATE INDEX idx_stage_execution_records_thread_id ON stage_execution_records(thread_id, started_at);
			CREATE INDEX idx_stage_execution_records_stage_id ON stage_execution_records(stage_id, started_at);
			CREATE INDEX idx_stage_execution_records_status ON stage_execution_records(status);
		`,
	}
}
