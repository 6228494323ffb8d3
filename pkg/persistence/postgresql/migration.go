package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				input_schema JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_flows_owner ON flows(owner);
			CREATE INDEX idx_flows_created_at ON flows(created_at);
			CREATE INDEX idx_flows_deleted_at ON flows(deleted_at);
		`,
		2: `
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'success', 'failed')),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				input JSONB,
				output JSONB,
				node_statuses JSONB NOT NULL DEFAULT '{}',
				error TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_executions_flow_id ON executions(flow_id);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL DEFAULT '',
				sequence BIGINT NOT NULL,
				logged_at TIMESTAMP WITH TIME ZONE NOT NULL,
				level VARCHAR(20) NOT NULL CHECK (level IN ('info', 'warning', 'error')),
				message TEXT NOT NULL,
				data JSONB
			);

			CREATE UNIQUE INDEX idx_execution_logs_sequence ON execution_logs(execution_id, sequence);
		`,
		3: `
			CREATE TABLE connectors (
				id VARCHAR(255) PRIMARY KEY,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL,
				base_url TEXT NOT NULL,
				auth_type VARCHAR(20) NOT NULL CHECK (auth_type IN ('none', 'basic', 'oauth2')),
				auth_config JSONB NOT NULL DEFAULT '{}',
				default_headers JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_connectors_auth_type ON connectors(auth_type);

			CREATE TABLE table_rows (
				id VARCHAR(255) PRIMARY KEY,
				table_id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_table_rows_table_id ON table_rows(table_id);
			CREATE INDEX idx_table_rows_data ON table_rows USING GIN (data jsonb_path_ops);
		`,
	}
}
