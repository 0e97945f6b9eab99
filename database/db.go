package database

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error: %v", err)
		return nil, err
	}
	err = createActivityTable(db)
	if err != nil {
		return nil, err
	}
	err = createActivityHistoryTable(db)
	if err != nil {
		return nil, err
	}
	err = createCatalogSceneTable(db)
	if err != nil {
		return nil, err
	}
	err = createCatalogProductTable(db)
	if err != nil {
		return nil, err
	}
	err = createCatalogQuicklookTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// createActivityTable creates the ledger table. The partial unique index is
// the natural key: at most one non-DONE row per (scene_ref, stage), which is
// what the upsert conflicts against.
func createActivityTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS activities (
			id BIGSERIAL PRIMARY KEY,
			scene_ref TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'NOTDONE' CHECK (status IN ('NOTDONE', 'DOING', 'DONE', 'ERROR', 'SUSPEND')),
			priority INT NOT NULL DEFAULT 5,
			input_ref TEXT,
			output_ref TEXT,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			claimed_at TIMESTAMPTZ,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			retcode INT NOT NULL DEFAULT 0,
			message TEXT,
			args JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS activities_scene_stage_open
		ON activities (scene_ref, stage)
		WHERE status <> 'DONE'
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS activities_runnable
		ON activities (priority, id)
		WHERE status = 'NOTDONE'
	`)
	log.Println(err)
	return err
}

// createActivityHistoryTable creates the append-only dispatch audit table.
func createActivityHistoryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS activity_history (
			id BIGSERIAL PRIMARY KEY,
			activity_id BIGINT NOT NULL REFERENCES activities(id),
			task_id TEXT NOT NULL,
			start TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			env TEXT
		)
	`)
	log.Println(err)
	return err
}

// createCatalogSceneTable creates the per-scene catalog record table.
func createCatalogSceneTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS catalog_scenes (
			id BIGSERIAL PRIMARY KEY,
			scene_ref TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			cloud_cover DOUBLE PRECISION,
			min_x DOUBLE PRECISION,
			min_y DOUBLE PRECISION,
			max_x DOUBLE PRECISION,
			max_y DOUBLE PRECISION,
			crs TEXT,
			sensed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

func createCatalogProductTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS catalog_products (
			id BIGSERIAL PRIMARY KEY,
			scene_ref TEXT NOT NULL REFERENCES catalog_scenes(scene_ref),
			band TEXT NOT NULL,
			path TEXT NOT NULL,
			UNIQUE (scene_ref, band)
		)
	`)
	log.Println(err)
	return err
}

func createCatalogQuicklookTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS catalog_quicklooks (
			id BIGSERIAL PRIMARY KEY,
			scene_ref TEXT NOT NULL UNIQUE REFERENCES catalog_scenes(scene_ref),
			path TEXT NOT NULL
		)
	`)
	log.Println(err)
	return err
}
