/*
Copyright (C) 2018 the emitk authors.
This file is part of emitk.

emitk is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

emitk is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with emitk.  If not, see <http://www.gnu.org/licenses/>.
*/

package inventory

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	// Register sqlite drivers
	_ "github.com/mattn/go-sqlite3"

	"github.com/airshedmodel/emitk/temporal"
)

// Store is a SQLite-backed emission inventory.
type Store struct {
	db *sql.DB
}

// schema holds the inventory tables. Geometries are stored as GeoJSON in
// WGS84; tags as JSON objects; time-variation profiles as gob blobs.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		proj4 TEXT NOT NULL,
		x1 REAL NOT NULL,
		y1 REAL NOT NULL,
		x2 REAL NOT NULL,
		y2 REAL NOT NULL,
		timezone TEXT NOT NULL,
		codeset1 TEXT NOT NULL DEFAULT '',
		codeset2 TEXT NOT NULL DEFAULT '',
		codeset3 TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS substances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		slug TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS timevars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		profile BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS code_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS activity_codes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code_set_id INTEGER NOT NULL REFERENCES code_sets (id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		UNIQUE (code_set_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS facilities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		official_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		unit TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS emission_factors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		activity_id INTEGER NOT NULL REFERENCES activities (id) ON DELETE CASCADE,
		substance_id INTEGER NOT NULL REFERENCES substances (id),
		factor REAL NOT NULL,
		UNIQUE (activity_id, substance_id)
	)`,
	`CREATE TABLE IF NOT EXISTS point_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		facility_id INTEGER REFERENCES facilities (id),
		name TEXT NOT NULL DEFAULT '',
		timevar_id INTEGER REFERENCES timevars (id),
		tags TEXT NOT NULL DEFAULT '{}',
		ac1 TEXT NOT NULL DEFAULT '',
		ac2 TEXT NOT NULL DEFAULT '',
		ac3 TEXT NOT NULL DEFAULT '',
		chimney_height REAL NOT NULL DEFAULT 0,
		chimney_outer_diameter REAL NOT NULL DEFAULT 0,
		chimney_inner_diameter REAL NOT NULL DEFAULT 0,
		chimney_gas_speed REAL NOT NULL DEFAULT 0,
		chimney_gas_temperature REAL NOT NULL DEFAULT 0,
		house_width REAL NOT NULL DEFAULT 0,
		house_height REAL NOT NULL DEFAULT 0,
		geom TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS area_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		facility_id INTEGER REFERENCES facilities (id),
		name TEXT NOT NULL DEFAULT '',
		timevar_id INTEGER REFERENCES timevars (id),
		tags TEXT NOT NULL DEFAULT '{}',
		ac1 TEXT NOT NULL DEFAULT '',
		ac2 TEXT NOT NULL DEFAULT '',
		ac3 TEXT NOT NULL DEFAULT '',
		geom TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS point_source_substances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES point_sources (id) ON DELETE CASCADE,
		substance_id INTEGER NOT NULL REFERENCES substances (id),
		value REAL NOT NULL,
		UNIQUE (source_id, substance_id)
	)`,
	`CREATE TABLE IF NOT EXISTS area_source_substances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES area_sources (id) ON DELETE CASCADE,
		substance_id INTEGER NOT NULL REFERENCES substances (id),
		value REAL NOT NULL,
		UNIQUE (source_id, substance_id)
	)`,
	`CREATE TABLE IF NOT EXISTS point_source_activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES point_sources (id) ON DELETE CASCADE,
		activity_id INTEGER NOT NULL REFERENCES activities (id),
		rate REAL NOT NULL,
		UNIQUE (source_id, activity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS area_source_activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES area_sources (id) ON DELETE CASCADE,
		activity_id INTEGER NOT NULL REFERENCES activities (id),
		rate REAL NOT NULL,
		UNIQUE (source_id, activity_id)
	)`,
	`CREATE INDEX IF NOT EXISTS point_source_substances_substance
		ON point_source_substances (substance_id)`,
	`CREATE INDEX IF NOT EXISTS area_source_substances_substance
		ON area_source_substances (substance_id)`,
}

// defaultSubstances are seeded into every new inventory.
var defaultSubstances = []Substance{
	{Name: "Nitrogen oxides", Slug: "NOx"},
	{Name: "Sulfur oxides", Slug: "SOx"},
	{Name: "Carbon monoxide", Slug: "CO"},
	{Name: "Ammonia", Slug: "NH3"},
	{Name: "Non-methane volatile organic compounds", Slug: "NMVOC"},
	{Name: "Particulate matter < 10um", Slug: "PM10"},
	{Name: "Particulate matter < 2.5um", Slug: "PM25"},
	{Name: "Black carbon", Slug: "BC"},
	{Name: "Methane", Slug: "CH4"},
	{Name: "Carbon dioxide", Slug: "CO2"},
	{Name: "Nitrous oxide", Slug: "N2O"},
	{Name: "Lead", Slug: "Pb"},
}

func openDB(filename string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("inventory: opening database: %v", err)
	}
	// sqlite only supports one writer; a single connection also makes
	// the pragma below apply to every statement.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("inventory: enabling foreign keys: %v", err)
	}
	return db, nil
}

// Create creates a new inventory database at filename with the given
// settings and seeds it with the default substances. It fails if filename
// already exists.
func Create(filename string, s *Settings) (*Store, error) {
	if filename != ":memory:" {
		if _, err := os.Stat(filename); err == nil {
			return nil, fmt.Errorf("inventory: database %s already exists", filename)
		}
	}
	if _, err := s.SR(); err != nil {
		return nil, err
	}
	if _, err := s.Location(); err != nil {
		return nil, err
	}
	if s.Extent[0] >= s.Extent[2] || s.Extent[1] >= s.Extent[3] {
		return nil, ConfigErrorf("inventory: invalid extent %v: "+
			"expected x1 < x2 and y1 < y2", s.Extent)
	}
	db, err := openDB(filename)
	if err != nil {
		return nil, err
	}
	st := &Store{db: db}
	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("inventory: creating schema: %v", err)
		}
	}
	if err := st.SetSettings(s); err != nil {
		db.Close()
		return nil, err
	}
	for _, sub := range defaultSubstances {
		if _, err := st.AddSubstance(sub.Name, sub.Slug); err != nil {
			db.Close()
			return nil, err
		}
	}
	return st, nil
}

// Open opens an existing inventory database.
func Open(filename string) (*Store, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("inventory: database %s does not exist", filename)
	}
	db, err := openDB(filename)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (st *Store) Close() error {
	return st.db.Close()
}

// transact runs f inside a transaction. If dryRun is true the transaction
// is rolled back after f returns, leaving the database unchanged.
func (st *Store) transact(dryRun bool, f func(tx *sql.Tx) error) error {
	tx, err := st.db.Begin()
	if err != nil {
		return fmt.Errorf("inventory: beginning transaction: %v", err)
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	if dryRun {
		return tx.Rollback()
	}
	return tx.Commit()
}

// Settings returns the inventory settings.
func (st *Store) Settings() (*Settings, error) {
	s := new(Settings)
	err := st.db.QueryRow(
		`SELECT proj4, x1, y1, x2, y2, timezone, codeset1, codeset2, codeset3
			FROM settings WHERE id = 1`).Scan(
		&s.Proj4, &s.Extent[0], &s.Extent[1], &s.Extent[2], &s.Extent[3],
		&s.Timezone, &s.CodeSets[0], &s.CodeSets[1], &s.CodeSets[2])
	if err != nil {
		return nil, fmt.Errorf("inventory: reading settings: %v", err)
	}
	return s, nil
}

// SetSettings stores s as the inventory settings, replacing any previous
// settings.
func (st *Store) SetSettings(s *Settings) error {
	_, err := st.db.Exec(
		`INSERT OR REPLACE INTO settings
			(id, proj4, x1, y1, x2, y2, timezone, codeset1, codeset2, codeset3)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Proj4, s.Extent[0], s.Extent[1], s.Extent[2], s.Extent[3],
		s.Timezone, s.CodeSets[0], s.CodeSets[1], s.CodeSets[2])
	if err != nil {
		return fmt.Errorf("inventory: storing settings: %v", err)
	}
	return nil
}

// AddSubstance adds a substance and returns its id.
func (st *Store) AddSubstance(name, slug string) (int64, error) {
	res, err := st.db.Exec(
		"INSERT INTO substances (name, slug) VALUES (?, ?)", name, slug)
	if err != nil {
		return 0, fmt.Errorf("inventory: adding substance %s: %v", slug, err)
	}
	return res.LastInsertId()
}

// Substances returns all substances ordered by id.
func (st *Store) Substances() ([]*Substance, error) {
	rows, err := st.db.Query("SELECT id, name, slug FROM substances ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("inventory: listing substances: %v", err)
	}
	defer rows.Close()
	var o []*Substance
	for rows.Next() {
		s := new(Substance)
		if err := rows.Scan(&s.ID, &s.Name, &s.Slug); err != nil {
			return nil, fmt.Errorf("inventory: scanning substance: %v", err)
		}
		o = append(o, s)
	}
	return o, rows.Err()
}

// SubstanceBySlug returns the substance with the given slug. Unknown slugs
// are a configuration error.
func (st *Store) SubstanceBySlug(slug string) (*Substance, error) {
	s := new(Substance)
	err := st.db.QueryRow(
		"SELECT id, name, slug FROM substances WHERE slug = ?", slug).Scan(
		&s.ID, &s.Name, &s.Slug)
	if err == sql.ErrNoRows {
		return nil, ConfigErrorf("inventory: unknown substance '%s'", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: reading substance %s: %v", slug, err)
	}
	return s, nil
}

func encodeProfile(p *temporal.Profile) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("inventory: encoding profile: %v", err)
	}
	return buf.Bytes(), nil
}

func decodeProfile(b []byte) (*temporal.Profile, error) {
	p := new(temporal.Profile)
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(p); err != nil {
		return nil, fmt.Errorf("inventory: decoding profile: %v", err)
	}
	return p, nil
}

// AddTimevar adds a named time-variation profile and returns its id.
func (st *Store) AddTimevar(name string, p *temporal.Profile) (int64, error) {
	b, err := encodeProfile(p)
	if err != nil {
		return 0, err
	}
	res, err := st.db.Exec(
		"INSERT INTO timevars (name, profile) VALUES (?, ?)", name, b)
	if err != nil {
		return 0, fmt.Errorf("inventory: adding timevar %s: %v", name, err)
	}
	return res.LastInsertId()
}

// Timevars returns all time-variation profiles ordered by id.
func (st *Store) Timevars() ([]*Timevar, error) {
	rows, err := st.db.Query("SELECT id, name, profile FROM timevars ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("inventory: listing timevars: %v", err)
	}
	defer rows.Close()
	var o []*Timevar
	for rows.Next() {
		tv := new(Timevar)
		var b []byte
		if err := rows.Scan(&tv.ID, &tv.Name, &b); err != nil {
			return nil, fmt.Errorf("inventory: scanning timevar: %v", err)
		}
		if tv.Profile, err = decodeProfile(b); err != nil {
			return nil, err
		}
		o = append(o, tv)
	}
	return o, rows.Err()
}

// TimevarByName returns the time-variation profile with the given name.
func (st *Store) TimevarByName(name string) (*Timevar, error) {
	tv := &Timevar{Name: name}
	var b []byte
	err := st.db.QueryRow(
		"SELECT id, profile FROM timevars WHERE name = ?", name).Scan(&tv.ID, &b)
	if err == sql.ErrNoRows {
		return nil, ConfigErrorf("inventory: unknown timevar '%s'", name)
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: reading timevar %s: %v", name, err)
	}
	if tv.Profile, err = decodeProfile(b); err != nil {
		return nil, err
	}
	return tv, nil
}

// AddCodeSet adds an activity-code classification scheme and returns its id.
func (st *Store) AddCodeSet(name, slug string) (int64, error) {
	res, err := st.db.Exec(
		"INSERT INTO code_sets (name, slug) VALUES (?, ?)", name, slug)
	if err != nil {
		return 0, fmt.Errorf("inventory: adding code set %s: %v", slug, err)
	}
	return res.LastInsertId()
}

// AddActivityCode adds a code to a code set and returns its id.
func (st *Store) AddActivityCode(codeSetID int64, code, label string) (int64, error) {
	res, err := st.db.Exec(
		"INSERT INTO activity_codes (code_set_id, code, label) VALUES (?, ?, ?)",
		codeSetID, code, label)
	if err != nil {
		return 0, fmt.Errorf("inventory: adding activity code %s: %v", code, err)
	}
	return res.LastInsertId()
}

// hasActivityCode reports whether code exists in the code set with the
// given slug.
func (st *Store) hasActivityCode(codeSetSlug, code string) (bool, error) {
	var n int
	err := st.db.QueryRow(
		`SELECT COUNT(*) FROM activity_codes ac
			JOIN code_sets cs ON cs.id = ac.code_set_id
			WHERE cs.slug = ? AND ac.code = ?`, codeSetSlug, code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inventory: looking up activity code %s: %v", code, err)
	}
	return n > 0, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func addFacility(q execer, officialID, name string) (int64, error) {
	var id int64
	err := q.QueryRow(
		"SELECT id FROM facilities WHERE official_id = ?", officialID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("inventory: looking up facility %s: %v", officialID, err)
	}
	res, err := q.Exec(
		"INSERT INTO facilities (official_id, name) VALUES (?, ?)", officialID, name)
	if err != nil {
		return 0, fmt.Errorf("inventory: adding facility %s: %v", officialID, err)
	}
	return res.LastInsertId()
}

// AddFacility adds a facility, or returns the id of the existing facility
// with the same official id.
func (st *Store) AddFacility(officialID, name string) (int64, error) {
	return addFacility(st.db, officialID, name)
}

// AddActivity adds an activity and its emission factors and returns the
// activity id.
func (st *Store) AddActivity(a *Activity) (int64, error) {
	var id int64
	err := st.transact(false, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			"INSERT INTO activities (name, unit) VALUES (?, ?)", a.Name, a.Unit)
		if err != nil {
			return fmt.Errorf("inventory: adding activity %s: %v", a.Name, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		for _, ef := range a.EmissionFactors {
			if _, err := tx.Exec(
				`INSERT INTO emission_factors (activity_id, substance_id, factor)
					VALUES (?, ?, ?)`, id, ef.SubstanceID, ef.Factor); err != nil {
				return fmt.Errorf("inventory: adding emission factor: %v", err)
			}
		}
		return nil
	})
	return id, err
}

// ActivityByName returns the activity with the given name, including its
// emission factors.
func (st *Store) ActivityByName(name string) (*Activity, error) {
	a := &Activity{Name: name}
	err := st.db.QueryRow(
		"SELECT id, unit FROM activities WHERE name = ?", name).Scan(&a.ID, &a.Unit)
	if err == sql.ErrNoRows {
		return nil, ConfigErrorf("inventory: unknown activity '%s'", name)
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: reading activity %s: %v", name, err)
	}
	rows, err := st.db.Query(
		"SELECT substance_id, factor FROM emission_factors WHERE activity_id = ?", a.ID)
	if err != nil {
		return nil, fmt.Errorf("inventory: reading emission factors: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		ef := new(EmissionFactor)
		if err := rows.Scan(&ef.SubstanceID, &ef.Factor); err != nil {
			return nil, fmt.Errorf("inventory: scanning emission factor: %v", err)
		}
		a.EmissionFactors = append(a.EmissionFactors, ef)
	}
	return a, rows.Err()
}

// nullID converts a zero id to NULL for storage.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func encodeTags(tags map[string]string) (string, error) {
	if len(tags) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("inventory: encoding tags: %v", err)
	}
	return string(b), nil
}

func encodeGeom(g geom.Geom) (string, error) {
	b, err := geojson.Encode(g)
	if err != nil {
		return "", fmt.Errorf("inventory: encoding geometry: %v", err)
	}
	return string(b), nil
}

func addSourceDetails(tx *sql.Tx, table string, sourceID int64,
	substances []*SourceSubstance, activities []*SourceActivity) error {
	for _, ss := range substances {
		if _, err := tx.Exec(
			"INSERT INTO "+table+"_substances (source_id, substance_id, value) VALUES (?, ?, ?)",
			sourceID, ss.SubstanceID, ss.Value); err != nil {
			return fmt.Errorf("inventory: adding source substance: %v", err)
		}
	}
	for _, sa := range activities {
		if _, err := tx.Exec(
			"INSERT INTO "+table+"_activities (source_id, activity_id, rate) VALUES (?, ?, ?)",
			sourceID, sa.ActivityID, sa.Rate); err != nil {
			return fmt.Errorf("inventory: adding source activity: %v", err)
		}
	}
	return nil
}

func (st *Store) addPointSourceTx(tx *sql.Tx, ps *PointSource) (int64, error) {
	tags, err := encodeTags(ps.Tags)
	if err != nil {
		return 0, err
	}
	g, err := encodeGeom(ps.Geom)
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(
		`INSERT INTO point_sources (facility_id, name, timevar_id, tags,
			ac1, ac2, ac3,
			chimney_height, chimney_outer_diameter, chimney_inner_diameter,
			chimney_gas_speed, chimney_gas_temperature, house_width, house_height,
			geom)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(ps.FacilityID), ps.Name, nullID(ps.TimevarID), tags,
		ps.ActivityCodes[0], ps.ActivityCodes[1], ps.ActivityCodes[2],
		ps.ChimneyHeight, ps.ChimneyOuterDiameter, ps.ChimneyInnerDiameter,
		ps.ChimneyGasSpeed, ps.ChimneyGasTemperature, ps.HouseWidth, ps.HouseHeight,
		g)
	if err != nil {
		return 0, fmt.Errorf("inventory: adding point source %s: %v", ps.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, addSourceDetails(tx, "point_source", id, ps.Substances, ps.Activities)
}

func (st *Store) addAreaSourceTx(tx *sql.Tx, as *AreaSource) (int64, error) {
	tags, err := encodeTags(as.Tags)
	if err != nil {
		return 0, err
	}
	g, err := encodeGeom(as.Geom)
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(
		`INSERT INTO area_sources (facility_id, name, timevar_id, tags,
			ac1, ac2, ac3, geom)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(as.FacilityID), as.Name, nullID(as.TimevarID), tags,
		as.ActivityCodes[0], as.ActivityCodes[1], as.ActivityCodes[2], g)
	if err != nil {
		return 0, fmt.Errorf("inventory: adding area source %s: %v", as.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, addSourceDetails(tx, "area_source", id, as.Substances, as.Activities)
}

// AddPointSource adds a point source with its substance emissions and
// activities, and returns the source id. The geometry must be in WGS84.
func (st *Store) AddPointSource(ps *PointSource) (int64, error) {
	var id int64
	err := st.transact(false, func(tx *sql.Tx) error {
		var err error
		id, err = st.addPointSourceTx(tx, ps)
		return err
	})
	return id, err
}

// AddAreaSource adds an area source with its substance emissions and
// activities, and returns the source id. The geometry must be in WGS84.
func (st *Store) AddAreaSource(as *AreaSource) (int64, error) {
	var id int64
	err := st.transact(false, func(tx *sql.Tx) error {
		var err error
		id, err = st.addAreaSourceTx(tx, as)
		return err
	})
	return id, err
}
