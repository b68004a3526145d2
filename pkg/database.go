package timetag

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
)

// parseCSVFloat64s parses a comma-separated list of floats, as stored in
// the coeff column of the Dispersion table.
func parseCSVFloat64s(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// BaselineRef holds stim reference positions, the stim search box half
// widths, the active-area boundary and the stim tracking window width.
type BaselineRef struct {
	SX1      float64 `db:"sx1"`
	SY1      float64 `db:"sy1"`
	SX2      float64 `db:"sx2"`
	SY2      float64 `db:"sy2"`
	XWidth   float64 `db:"xwidth"`
	YWidth   float64 `db:"ywidth"`
	BLow     float64 `db:"b_low"`
	BHigh    float64 `db:"b_high"`
	BLeft    float64 `db:"b_left"`
	BRight   float64 `db:"b_right"`
	Timestep float64 `db:"timestep"`
}

// BadTimeRow is one bad time interval, in MJD.
type BadTimeRow struct {
	Start float64 `db:"start"`
	Stop  float64 `db:"stop"`
}

// PulseHeightLimits holds the allowed pulse-height range for a segment.
type PulseHeightLimits struct {
	Low  int16 `db:"llt"`
	High int16 `db:"ult"`
}

// DeadtimeTable maps observed count rate to livetime factor.  ObsRate is
// sampled monotonically increasing; Timestep is the width of the local
// estimation window in seconds.
type DeadtimeTable struct {
	ObsRate  []float64
	Livetime []float64
	Timestep float64
}

// DispersionRelation holds the polynomial giving wavelength as a function
// of the dispersion-axis pixel coordinate.
type DispersionRelation struct {
	Coeff       []float64
	Delta       float64
	HasFPOffset bool
}

// TracePosition locates a spectral trace: b(x) = BSpec + Slope*x.
type TracePosition struct {
	BSpec float64 `db:"b_spec"`
	Slope float64 `db:"slope"`
}

// WavecalParams holds wavelength-calibration timing parameters.
type WavecalParams struct {
	StepSize float64 `db:"stepsize"`
}

// BadPixelRegion is one rectangular detector region with a known defect.
type BadPixelRegion struct {
	LX int    `db:"lx"`
	LY int    `db:"ly"`
	DX int    `db:"dx"`
	DY int    `db:"dy"`
	DQ uint16 `db:"dq"`
}

// DistortionGrid is a coarse grid of coordinate offsets covering the
// detector; offsets between grid nodes are interpolated bilinearly.
type DistortionGrid struct {
	NX, NY int
	BinX   float64
	BinY   float64
	DX     []float64 // NX*NY, row major
	DY     []float64
}

// FlatField is a pixel-by-pixel sensitivity map with an origin offset
// locating the map on the detector.
type FlatField struct {
	OriginX int
	OriginY int
	NX, NY  int
	Data    []float64 // NX*NY, row major
}

// RefTables is the reference-table query service consumed by the pipeline.
// Implementations must be read-only; the pipeline caches results per
// distinct query key within a run.
type RefTables interface {
	Baseline(segment string) (BaselineRef, error)
	BadTimes(segment string) ([]BadTimeRow, error)
	PulseHeight(segment string) (PulseHeightLimits, error)
	Deadtime(segment string) (DeadtimeTable, error)
	Dispersion(optElem string, cenwave int, aperture, segment string, fpoffset int) (DispersionRelation, error)
	Trace(optElem string, cenwave int, segment, aperture string) (TracePosition, error)
	Wavecal(optElem string) (WavecalParams, error)
	BadPixels(segment string) ([]BadPixelRegion, error)
	Distortion(segment string) (DistortionGrid, error)
	Flat(segment string) (FlatField, error)
}

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// DBRefTables implements RefTables against the calibration database,
// caching every query result per distinct key.
type DBRefTables struct {
	db        *sqlx.DB
	verbosity int

	mu    sync.Mutex
	cache map[string]interface{}
}

func NewDBRefTables(db *sqlx.DB, verbosity int) *DBRefTables {
	return &DBRefTables{
		db:        db,
		verbosity: verbosity,
		cache:     make(map[string]interface{}),
	}
}

func (r *DBRefTables) cached(key string, load func() (interface{}, error)) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache[key]; ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	r.cache[key] = v
	return v, nil
}

func (r *DBRefTables) logQuery(table string, key string) {
	if r.verbosity > 0 {
		message := fmt.Sprintf("Reading %s reference data for %s from database", table, key)
		logger.Info(message, "database")
	}
}

type baselineRow struct {
	BaselineRef
	Segment string `db:"segment"`
}

func (r *DBRefTables) Baseline(segment string) (BaselineRef, error) {
	key := "baseline/" + segment
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("BaselineRef", segment)
		rows := []baselineRow{}
		query := `SELECT segment, sx1, sy1, sx2, sy2, xwidth, ywidth,
				b_low, b_high, b_left, b_right, timestep
			FROM BaselineRef WHERE segment = ?`
		err := r.db.Select(&rows, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "BaselineRef", Err: err}
		}
		if len(rows) != 1 {
			return nil, &ErrRefLookup{Table: "BaselineRef", Key: segment, Rows: len(rows)}
		}
		return rows[0].BaselineRef, nil
	})
	if err != nil {
		return BaselineRef{}, err
	}
	return v.(BaselineRef), nil
}

func (r *DBRefTables) BadTimes(segment string) ([]BadTimeRow, error) {
	key := "badtime/" + segment
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("BadTime", segment)
		rows := []BadTimeRow{}
		query := "SELECT start, stop FROM BadTime WHERE segment = ? ORDER BY start"
		err := r.db.Select(&rows, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "BadTime", Err: err}
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]BadTimeRow), nil
}

func (r *DBRefTables) PulseHeight(segment string) (PulseHeightLimits, error) {
	key := "pha/" + segment
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("PulseHeight", segment)
		rows := []PulseHeightLimits{}
		query := "SELECT llt, ult FROM PulseHeight WHERE segment = ?"
		err := r.db.Select(&rows, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "PulseHeight", Err: err}
		}
		if len(rows) != 1 {
			return nil, &ErrRefLookup{Table: "PulseHeight", Key: segment, Rows: len(rows)}
		}
		return rows[0], nil
	})
	if err != nil {
		return PulseHeightLimits{}, err
	}
	return v.(PulseHeightLimits), nil
}

type deadtimeRow struct {
	ObsRate  float64 `db:"obs_rate"`
	Livetime float64 `db:"livetime"`
	Timestep float64 `db:"timestep"`
}

func (r *DBRefTables) Deadtime(segment string) (DeadtimeTable, error) {
	key := "deadtime/" + segment
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("Deadtime", segment)
		rows := []deadtimeRow{}
		query := "SELECT obs_rate, livetime, timestep FROM Deadtime WHERE segment = ? ORDER BY obs_rate"
		err := r.db.Select(&rows, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "Deadtime", Err: err}
		}
		if len(rows) == 0 {
			return nil, &ErrRefLookup{Table: "Deadtime", Key: segment, Rows: 0}
		}
		table := DeadtimeTable{Timestep: rows[0].Timestep}
		for _, row := range rows {
			table.ObsRate = append(table.ObsRate, row.ObsRate)
			table.Livetime = append(table.Livetime, row.Livetime)
		}
		return table, nil
	})
	if err != nil {
		return DeadtimeTable{}, err
	}
	return v.(DeadtimeTable), nil
}

type dispersionRow struct {
	NElem       int     `db:"nelem"`
	Coeff       string  `db:"coeff"`
	Delta       float64 `db:"delta"`
	HasFPOffset bool    `db:"has_fpoffset"`
}

func (r *DBRefTables) Dispersion(optElem string, cenwave int, aperture, segment string, fpoffset int) (DispersionRelation, error) {
	key := fmt.Sprintf("disp/%s/%d/%s/%s/%d", optElem, cenwave, aperture, segment, fpoffset)
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("Dispersion", key)
		rows := []dispersionRow{}
		query := `SELECT nelem, coeff, delta, has_fpoffset FROM Dispersion
			WHERE opt_elem = ? AND cenwave = ? AND aperture = ? AND segment = ?
			AND (has_fpoffset = 0 OR fpoffset = ?)`
		err := r.db.Select(&rows, query, optElem, cenwave, aperture, segment, fpoffset)
		if err != nil {
			return nil, &ErrRefMissing{Table: "Dispersion", Err: err}
		}
		if len(rows) != 1 {
			return nil, &ErrRefLookup{Table: "Dispersion", Key: key, Rows: len(rows)}
		}
		coeff, err := parseCSVFloat64s(rows[0].Coeff)
		if err != nil {
			return nil, fmt.Errorf("error parsing dispersion coefficients: %w", err)
		}
		if len(coeff) < rows[0].NElem {
			return nil, &ErrRefLookup{Table: "Dispersion", Key: key, Rows: len(rows)}
		}
		return DispersionRelation{
			Coeff:       coeff[:rows[0].NElem],
			Delta:       rows[0].Delta,
			HasFPOffset: rows[0].HasFPOffset,
		}, nil
	})
	if err != nil {
		return DispersionRelation{}, err
	}
	return v.(DispersionRelation), nil
}

func (r *DBRefTables) Trace(optElem string, cenwave int, segment, aperture string) (TracePosition, error) {
	key := fmt.Sprintf("trace/%s/%d/%s/%s", optElem, cenwave, segment, aperture)
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("Trace", key)
		rows := []TracePosition{}
		query := `SELECT b_spec, slope FROM Trace
			WHERE opt_elem = ? AND cenwave = ? AND segment = ? AND aperture = ?`
		err := r.db.Select(&rows, query, optElem, cenwave, segment, aperture)
		if err != nil {
			return nil, &ErrRefMissing{Table: "Trace", Err: err}
		}
		if len(rows) != 1 {
			return nil, &ErrRefLookup{Table: "Trace", Key: key, Rows: len(rows)}
		}
		return rows[0], nil
	})
	if err != nil {
		return TracePosition{}, err
	}
	return v.(TracePosition), nil
}

func (r *DBRefTables) Wavecal(optElem string) (WavecalParams, error) {
	key := "wavecal/" + optElem
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("Wavecal", optElem)
		rows := []WavecalParams{}
		query := "SELECT stepsize FROM Wavecal WHERE opt_elem = ?"
		err := r.db.Select(&rows, query, optElem)
		if err != nil {
			return nil, &ErrRefMissing{Table: "Wavecal", Err: err}
		}
		if len(rows) != 1 {
			return nil, &ErrRefLookup{Table: "Wavecal", Key: optElem, Rows: len(rows)}
		}
		return rows[0], nil
	})
	if err != nil {
		return WavecalParams{}, err
	}
	return v.(WavecalParams), nil
}

type badPixelRow struct {
	LX int    `db:"lx"`
	LY int    `db:"ly"`
	DX int    `db:"dx"`
	DY int    `db:"dy"`
	DQ uint16 `db:"dq"`
}

func (r *DBRefTables) BadPixels(segment string) ([]BadPixelRegion, error) {
	key := "badpix/" + segment
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("BadPixel", segment)
		rows := []badPixelRow{}
		query := "SELECT lx, ly, dx, dy, dq FROM BadPixel WHERE segment = ?"
		err := r.db.Select(&rows, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "BadPixel", Err: err}
		}
		regions := make([]BadPixelRegion, len(rows))
		for i, row := range rows {
			regions[i] = BadPixelRegion{LX: row.LX, LY: row.LY, DX: row.DX, DY: row.DY, DQ: row.DQ}
		}
		return regions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]BadPixelRegion), nil
}

type distortionNodeRow struct {
	IX int     `db:"ix"`
	IY int     `db:"iy"`
	DX float64 `db:"dx"`
	DY float64 `db:"dy"`
}

type distortionParamRow struct {
	NX   int     `db:"nx"`
	NY   int     `db:"ny"`
	BinX float64 `db:"binx"`
	BinY float64 `db:"biny"`
}

func (r *DBRefTables) Distortion(segment string) (DistortionGrid, error) {
	key := "geo/" + segment
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("Distortion", segment)
		params := []distortionParamRow{}
		query := "SELECT nx, ny, binx, biny FROM DistortionParams WHERE segment = ?"
		err := r.db.Select(&params, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "DistortionParams", Err: err}
		}
		if len(params) != 1 {
			return nil, &ErrRefLookup{Table: "DistortionParams", Key: segment, Rows: len(params)}
		}
		grid := DistortionGrid{
			NX:   params[0].NX,
			NY:   params[0].NY,
			BinX: params[0].BinX,
			BinY: params[0].BinY,
			DX:   make([]float64, params[0].NX*params[0].NY),
			DY:   make([]float64, params[0].NX*params[0].NY),
		}
		nodes := []distortionNodeRow{}
		query = "SELECT ix, iy, dx, dy FROM DistortionGrid WHERE segment = ?"
		err = r.db.Select(&nodes, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "DistortionGrid", Err: err}
		}
		for _, node := range nodes {
			if node.IX < 0 || node.IX >= grid.NX || node.IY < 0 || node.IY >= grid.NY {
				continue
			}
			grid.DX[node.IY*grid.NX+node.IX] = node.DX
			grid.DY[node.IY*grid.NX+node.IX] = node.DY
		}
		return grid, nil
	})
	if err != nil {
		return DistortionGrid{}, err
	}
	return v.(DistortionGrid), nil
}

type flatParamRow struct {
	OriginX int `db:"origin_x"`
	OriginY int `db:"origin_y"`
	NX      int `db:"nx"`
	NY      int `db:"ny"`
}

type flatValueRow struct {
	IX    int     `db:"ix"`
	IY    int     `db:"iy"`
	Value float64 `db:"value"`
}

func (r *DBRefTables) Flat(segment string) (FlatField, error) {
	key := "flat/" + segment
	v, err := r.cached(key, func() (interface{}, error) {
		r.logQuery("Flat", segment)
		params := []flatParamRow{}
		query := "SELECT origin_x, origin_y, nx, ny FROM FlatParams WHERE segment = ?"
		err := r.db.Select(&params, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "FlatParams", Err: err}
		}
		if len(params) != 1 {
			return nil, &ErrRefLookup{Table: "FlatParams", Key: segment, Rows: len(params)}
		}
		flat := FlatField{
			OriginX: params[0].OriginX,
			OriginY: params[0].OriginY,
			NX:      params[0].NX,
			NY:      params[0].NY,
			Data:    make([]float64, params[0].NX*params[0].NY),
		}
		// Cells without a row default to sensitivity 1.
		for i := range flat.Data {
			flat.Data[i] = 1.
		}
		values := []flatValueRow{}
		query = "SELECT ix, iy, value FROM FlatField WHERE segment = ?"
		err = r.db.Select(&values, query, segment)
		if err != nil {
			return nil, &ErrRefMissing{Table: "FlatField", Err: err}
		}
		for _, cell := range values {
			if cell.IX < 0 || cell.IX >= flat.NX || cell.IY < 0 || cell.IY >= flat.NY {
				continue
			}
			flat.Data[cell.IY*flat.NX+cell.IX] = cell.Value
		}
		return flat, nil
	})
	if err != nil {
		return FlatField{}, err
	}
	return v.(FlatField), nil
}

// SortBadTimes orders bad-time rows by start time.
func SortBadTimes(rows []BadTimeRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Start < rows[j].Start })
}
