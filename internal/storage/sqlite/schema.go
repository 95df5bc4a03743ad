package sqlite

const schemaDDL = `
CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	log_file_id    TEXT NOT NULL,
	type           TEXT NOT NULL,
	status         TEXT NOT NULL,
	progress       INTEGER NOT NULL DEFAULT 0,
	started_at     INTEGER,
	completed_at   INTEGER,
	result_summary TEXT,
	error_message  TEXT
);

CREATE TABLE IF NOT EXISTS log_files (
	id          TEXT PRIMARY KEY,
	site        TEXT NOT NULL,
	filename    TEXT NOT NULL,
	size        INTEGER NOT NULL,
	sha256      TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	status      TEXT NOT NULL,
	uploaded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS aggregates (
	site         TEXT NOT NULL,
	log_file_id  TEXT NOT NULL,
	hour         INTEGER NOT NULL,
	requests     INTEGER NOT NULL,
	status_2xx   INTEGER NOT NULL,
	status_3xx   INTEGER NOT NULL,
	status_4xx   INTEGER NOT NULL,
	status_5xx   INTEGER NOT NULL,
	status_other INTEGER NOT NULL,
	bytes        INTEGER NOT NULL,
	unique_ips   INTEGER NOT NULL,
	unique_paths INTEGER NOT NULL,
	top_json     TEXT NOT NULL,
	PRIMARY KEY (site, log_file_id, hour)
);

CREATE TABLE IF NOT EXISTS findings (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	site             TEXT NOT NULL,
	log_file_id      TEXT NOT NULL,
	finding_type     TEXT NOT NULL,
	severity         TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL,
	evidence_json    TEXT NOT NULL,
	suggested_action TEXT,
	metadata_json    TEXT,
	created_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS error_groups (
	site             TEXT NOT NULL,
	fingerprint      TEXT NOT NULL,
	error_type       TEXT NOT NULL,
	canonical_message TEXT NOT NULL,
	first_seen       INTEGER NOT NULL,
	last_seen        INTEGER NOT NULL,
	occurrence_count INTEGER NOT NULL,
	status           TEXT NOT NULL,
	resolved_at      INTEGER,
	deployment_id    TEXT,
	PRIMARY KEY (site, fingerprint)
);

CREATE TABLE IF NOT EXISTS error_occurrences (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	group_fingerprint TEXT NOT NULL,
	site              TEXT NOT NULL,
	log_file_id       TEXT,
	timestamp         INTEGER NOT NULL,
	error_type        TEXT NOT NULL,
	message           TEXT NOT NULL,
	stack             TEXT,
	file              TEXT,
	line              INTEGER,
	function          TEXT,
	request_url       TEXT,
	request_method    TEXT,
	ip                TEXT,
	user              TEXT,
	context_json      TEXT,
	UNIQUE (group_fingerprint, timestamp, message)
);

CREATE TABLE IF NOT EXISTS log_sources (
	id                 TEXT PRIMARY KEY,
	site               TEXT NOT NULL,
	type               TEXT NOT NULL,
	connection_json    TEXT NOT NULL,
	schedule_type      TEXT NOT NULL,
	interval_minutes   INTEGER NOT NULL DEFAULT 0,
	cron_expression    TEXT,
	status             TEXT NOT NULL,
	last_fetch_at      INTEGER,
	last_fetch_status  TEXT,
	last_fetch_error   TEXT,
	last_fetched_bytes INTEGER NOT NULL DEFAULT 0
);
`

func (d *DB) migrate() error {
	_, err := d.db.Exec(schemaDDL)
	return err
}
