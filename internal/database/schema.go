package database

// SQL schemas for all ClickHouse tables

const (
	// Co2DataTableSQL creates the co2_data table. The ingestion system rewrites
	// rows in place, so the latest version per id wins on merge.
	Co2DataTableSQL = `
		CREATE TABLE IF NOT EXISTS co2_data (
			id UInt64,
			timestamp DateTime64(3, 'UTC'),
			co2_position1_ppm Nullable(Float64),
			co2_position2_ppm Nullable(Float64),
			co2_position3_ppm Nullable(Float64),
			co2_reduced_ppm_interval Nullable(Float64),
			efficiency_percentage Nullable(Float64),
			co2_reduced_kg Nullable(Decimal(18, 8)),
			updated_at DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id
		PARTITION BY toYYYYMM(timestamp)
	`

	// EnvironmentDataTableSQL creates the environment_data table
	EnvironmentDataTableSQL = `
		CREATE TABLE IF NOT EXISTS environment_data (
			id UInt64,
			timestamp DateTime64(3, 'UTC'),
			ph_wolffia Nullable(Float64),
			ph_shells Nullable(Float64),
			energy_used_kwh Nullable(Float64)
		) ENGINE = MergeTree()
		ORDER BY (timestamp, id)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		Co2DataTableSQL,
		EnvironmentDataTableSQL,
	}
}

// sqliteSchema is the local development schema. Timestamps are unix
// milliseconds; kilograms are decimal strings.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS co2_data (
		id INTEGER PRIMARY KEY,
		timestamp_ms INTEGER NOT NULL,
		co2_position1_ppm REAL,
		co2_position2_ppm REAL,
		co2_position3_ppm REAL,
		co2_reduced_ppm_interval REAL,
		efficiency_percentage REAL,
		co2_reduced_kg TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_co2_timestamp ON co2_data(timestamp_ms);

	CREATE TABLE IF NOT EXISTS environment_data (
		id INTEGER PRIMARY KEY,
		timestamp_ms INTEGER NOT NULL,
		ph_wolffia REAL,
		ph_shells REAL,
		energy_used_kwh REAL
	);

	CREATE INDEX IF NOT EXISTS idx_env_timestamp ON environment_data(timestamp_ms);
`
