package store

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS issuer (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL DEFAULT '',
		entity_uid TEXT NOT NULL DEFAULT '',
		entity_uid_type TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS issuer_entity_id
		ON issuer(entity_id) WHERE entity_id <> '';`,
	`CREATE UNIQUE INDEX IF NOT EXISTS issuer_entity_uid
		ON issuer(entity_uid, entity_uid_type) WHERE entity_uid <> '';`,
	`CREATE TABLE IF NOT EXISTS code (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		code_value TEXT NOT NULL,
		code_designator TEXT NOT NULL,
		code_version TEXT NOT NULL DEFAULT '',
		code_meaning TEXT NOT NULL DEFAULT '',
		UNIQUE(code_value, code_designator, code_version)
	);`,
	`CREATE TABLE IF NOT EXISTS patient (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		pat_id TEXT NOT NULL DEFAULT '',
		issuer_fk INTEGER REFERENCES issuer(pk),
		pat_name TEXT NOT NULL DEFAULT '',
		pat_fn_sx TEXT NOT NULL DEFAULT '',
		pat_gn_sx TEXT NOT NULL DEFAULT '',
		pat_birthdate TEXT NOT NULL DEFAULT '',
		pat_sex TEXT NOT NULL DEFAULT '',
		pat_custom1 TEXT NOT NULL DEFAULT '',
		pat_custom2 TEXT NOT NULL DEFAULT '',
		pat_custom3 TEXT NOT NULL DEFAULT '',
		merge_fk INTEGER REFERENCES patient(pk),
		attrs BLOB,
		created_time TIMESTAMP NOT NULL,
		updated_time TIMESTAMP NOT NULL
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS patient_id_issuer
		ON patient(pat_id, COALESCE(issuer_fk, 0)) WHERE pat_id <> '';`,
	`CREATE INDEX IF NOT EXISTS patient_name ON patient(pat_name);`,
	`CREATE INDEX IF NOT EXISTS patient_fn_sx ON patient(pat_fn_sx);`,
	`CREATE INDEX IF NOT EXISTS patient_merge ON patient(merge_fk);`,
	`CREATE TABLE IF NOT EXISTS study (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_fk INTEGER NOT NULL REFERENCES patient(pk) ON DELETE CASCADE,
		study_iuid TEXT NOT NULL UNIQUE,
		accession_no TEXT NOT NULL DEFAULT '',
		accno_issuer_fk INTEGER REFERENCES issuer(pk),
		study_id TEXT NOT NULL DEFAULT '',
		study_date TEXT NOT NULL DEFAULT '',
		study_time TEXT NOT NULL DEFAULT '',
		ref_physician TEXT NOT NULL DEFAULT '',
		ref_phys_fn_sx TEXT NOT NULL DEFAULT '',
		ref_phys_gn_sx TEXT NOT NULL DEFAULT '',
		study_desc TEXT NOT NULL DEFAULT '',
		study_custom1 TEXT NOT NULL DEFAULT '',
		study_custom2 TEXT NOT NULL DEFAULT '',
		study_custom3 TEXT NOT NULL DEFAULT '',
		num_series INTEGER NOT NULL DEFAULT 0,
		num_instances INTEGER NOT NULL DEFAULT 0,
		mods_in_study TEXT NOT NULL DEFAULT '',
		cuids_in_study TEXT NOT NULL DEFAULT '',
		retrieve_aets TEXT NOT NULL DEFAULT '',
		ext_retr_aet TEXT,
		availability INTEGER NOT NULL DEFAULT 0,
		attrs BLOB,
		created_time TIMESTAMP NOT NULL,
		updated_time TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS study_patient ON study(patient_fk);`,
	`CREATE INDEX IF NOT EXISTS study_date ON study(study_date, study_time);`,
	`CREATE INDEX IF NOT EXISTS study_accession ON study(accession_no);`,
	`CREATE TABLE IF NOT EXISTS series (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		study_fk INTEGER NOT NULL REFERENCES study(pk) ON DELETE CASCADE,
		series_iuid TEXT NOT NULL UNIQUE,
		series_no TEXT NOT NULL DEFAULT '',
		modality TEXT NOT NULL DEFAULT '',
		institution TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		station_name TEXT NOT NULL DEFAULT '',
		inst_code_fk INTEGER REFERENCES code(pk),
		perf_physician TEXT NOT NULL DEFAULT '',
		perf_phys_fn_sx TEXT NOT NULL DEFAULT '',
		perf_phys_gn_sx TEXT NOT NULL DEFAULT '',
		pps_iuid TEXT NOT NULL DEFAULT '',
		pps_cuid TEXT NOT NULL DEFAULT '',
		body_part TEXT NOT NULL DEFAULT '',
		laterality TEXT NOT NULL DEFAULT '',
		series_desc TEXT NOT NULL DEFAULT '',
		series_custom1 TEXT NOT NULL DEFAULT '',
		series_custom2 TEXT NOT NULL DEFAULT '',
		series_custom3 TEXT NOT NULL DEFAULT '',
		num_instances INTEGER NOT NULL DEFAULT 0,
		retrieve_aets TEXT NOT NULL DEFAULT '',
		ext_retr_aet TEXT,
		availability INTEGER NOT NULL DEFAULT 0,
		attrs BLOB,
		created_time TIMESTAMP NOT NULL,
		updated_time TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS series_study ON series(study_fk);`,
	`CREATE INDEX IF NOT EXISTS series_modality ON series(modality);`,
	`CREATE TABLE IF NOT EXISTS instance (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		series_fk INTEGER NOT NULL REFERENCES series(pk) ON DELETE CASCADE,
		sop_iuid TEXT NOT NULL UNIQUE,
		sop_cuid TEXT NOT NULL,
		inst_no TEXT NOT NULL DEFAULT '',
		content_date TEXT NOT NULL DEFAULT '',
		content_time TEXT NOT NULL DEFAULT '',
		srcode_fk INTEGER REFERENCES code(pk),
		retrieve_aets TEXT NOT NULL DEFAULT '',
		ext_retr_aet TEXT,
		availability INTEGER NOT NULL DEFAULT 0,
		inst_custom1 TEXT NOT NULL DEFAULT '',
		inst_custom2 TEXT NOT NULL DEFAULT '',
		inst_custom3 TEXT NOT NULL DEFAULT '',
		attrs BLOB,
		created_time TIMESTAMP NOT NULL,
		updated_time TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS instance_series ON instance(series_fk);`,
	`CREATE TABLE IF NOT EXISTS file_ref (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_fk INTEGER NOT NULL REFERENCES instance(pk) ON DELETE CASCADE,
		fs_group_id TEXT NOT NULL,
		fs_id TEXT NOT NULL,
		filepath TEXT NOT NULL,
		transfer_syntax TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_digest TEXT,
		created_time TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS file_ref_instance ON file_ref(instance_fk);`,
	`CREATE TABLE IF NOT EXISTS study_permission (
		study_iuid TEXT NOT NULL,
		role TEXT NOT NULL,
		action TEXT NOT NULL,
		PRIMARY KEY(study_iuid, role, action)
	);`,
}
