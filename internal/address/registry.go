// Package address resolves a delivery address: the province, district and
// sub-district hierarchy from a static table, the derived postal code, the
// map location, and the user's saved addresses.
package address

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/metrics"
)

type Selection struct {
	AddressLine string   `json:"address_line"`
	SubDistrict string   `json:"sub_district"`
	District    string   `json:"district"`
	Province    string   `json:"province"`
	PostalCode  string   `json:"postal_code"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// Locatable reports whether both coordinates are set.
func (s Selection) Locatable() bool {
	return s.Latitude != nil && s.Longitude != nil
}

func (s Selection) Complete() bool {
	return s.Province != "" && s.District != "" && s.SubDistrict != ""
}

// Label is the human readable form sent along with orders.
func (s Selection) Label() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{s.AddressLine, s.SubDistrict, s.District, s.Province, s.PostalCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type pinSource int

const (
	pinNone pinSource = iota
	pinGeocoded
	pinManual
)

// Registry holds the address being edited. Selecting a level clears every
// level below it, so the selection always respects the hierarchy.
type Registry struct {
	table    *ReferenceTable
	geocoder Geocoder
	country  string
	logger   *zap.Logger

	mu     sync.Mutex
	sel    Selection
	pin    pinSource
	center Coordinates
	// gen counts triad selections. A geocode result is kept only if no
	// selection happened while it was in flight.
	gen uint64
}

type Option func(*Registry)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithCountry sets the suffix appended to geocode queries.
func WithCountry(country string) Option {
	return func(r *Registry) {
		r.country = country
	}
}

func NewRegistry(table *ReferenceTable, geocoder Geocoder, options ...Option) *Registry {
	r := &Registry{
		table:    table,
		geocoder: geocoder,
		country:  "Thailand",
		logger:   zap.NewNop(),
		center:   DefaultCenter,
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

func (r *Registry) Table() *ReferenceTable {
	return r.table
}

func (r *Registry) Selection() Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sel
}

func (r *Registry) MapCenter() Coordinates {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.center
}

// Load replaces the selection, for example when editing a saved address.
// Coordinates that come with it count as a placed pin.
func (r *Registry) Load(sel Selection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sel = sel
	r.gen++
	r.pin = pinNone
	if sel.Locatable() {
		r.pin = pinManual
		r.center = Coordinates{Lat: *sel.Latitude, Lng: *sel.Longitude}
	}
}

// SelectProvince sets the province and clears district, sub-district and
// postal code. An empty value unsets it.
func (r *Registry) SelectProvince(province string) error {
	if province != "" && !slices.Contains(r.table.Provinces(), province) {
		return apperr.Fields("unknown province", map[string]string{"province": province})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.sel.Province = province
	r.sel.District = ""
	r.sel.SubDistrict = ""
	r.sel.PostalCode = ""
	r.dropGeocodedLocked()
	return nil
}

func (r *Registry) SelectDistrict(district string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if district != "" && !slices.Contains(r.table.Districts(r.sel.Province), district) {
		return apperr.Fields("unknown district", map[string]string{"district": district})
	}

	r.gen++
	r.sel.District = district
	r.sel.SubDistrict = ""
	r.sel.PostalCode = ""
	r.dropGeocodedLocked()
	return nil
}

// SelectSubDistrict also fills the postal code when the table resolves the
// triad to a single code, and leaves it blank otherwise.
func (r *Registry) SelectSubDistrict(subDistrict string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subDistrict != "" && !slices.Contains(r.table.SubDistricts(r.sel.Province, r.sel.District), subDistrict) {
		return apperr.Fields("unknown sub-district", map[string]string{"sub_district": subDistrict})
	}

	r.gen++
	r.sel.SubDistrict = subDistrict
	r.sel.PostalCode = ""
	if subDistrict != "" {
		if code, ok := r.table.PostalCode(r.sel.Province, r.sel.District, subDistrict); ok {
			r.sel.PostalCode = code
		}
	}
	r.dropGeocodedLocked()
	return nil
}

func (r *Registry) SetAddressLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sel.AddressLine = line
}

// SetManualPin always wins over geocoded coordinates, including ones still
// in flight.
func (r *Registry) SetManualPin(lat, lng float64) error {
	fields := map[string]string{}
	if lat < -90 || lat > 90 {
		fields["latitude"] = "must be between -90 and 90"
	}
	if lng < -180 || lng > 180 {
		fields["longitude"] = "must be between -180 and 180"
	}
	if len(fields) > 0 {
		return apperr.Fields("invalid location", fields)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sel.Latitude = &lat
	r.sel.Longitude = &lng
	r.pin = pinManual
	r.center = Coordinates{Lat: lat, Lng: lng}
	return nil
}

// Validate returns a ValidationError listing every missing field, or nil.
func (r *Registry) Validate() error {
	sel := r.Selection()

	fields := map[string]string{}
	if strings.TrimSpace(sel.AddressLine) == "" {
		fields["address_line"] = "address is required"
	}
	if sel.Province == "" {
		fields["province"] = "province is required"
	}
	if sel.District == "" {
		fields["district"] = "district is required"
	}
	if sel.SubDistrict == "" {
		fields["sub_district"] = "sub-district is required"
	}
	if sel.PostalCode == "" {
		fields["postal_code"] = "postal code is required"
	}
	if !sel.Locatable() {
		fields["map"] = "place a pin on the map"
	}

	if len(fields) > 0 {
		return apperr.Fields("address is incomplete", fields)
	}
	return nil
}

// Geocode looks up the selected triad. The map center always moves to the
// result; the coordinates are seeded only when no pin has been placed by
// hand. A result is dropped when any level was selected again while it was
// in flight, even if the triad ended up the same. Failures
// leave everything unset and are not reported.
func (r *Registry) Geocode(ctx context.Context) (Coordinates, bool) {
	r.mu.Lock()
	sel, gen := r.sel, r.gen
	r.mu.Unlock()

	if !sel.Complete() {
		return Coordinates{}, false
	}

	query := fmt.Sprintf("%s, %s, %s, %s", sel.SubDistrict, sel.District, sel.Province, r.country)
	loc, err := r.geocoder.Geocode(ctx, query)
	if err != nil {
		r.logger.Debug("geocode failed", zap.String("query", query), zap.Error(err))
		return Coordinates{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		r.logger.Debug("dropping geocode for superseded selection", zap.String("query", query))
		metrics.StaleResponse("geocode")
		return Coordinates{}, false
	}

	r.center = loc
	if r.pin != pinManual {
		lat, lng := loc.Lat, loc.Lng
		r.sel.Latitude = &lat
		r.sel.Longitude = &lng
		r.pin = pinGeocoded
	}
	return loc, true
}

func (r *Registry) dropGeocodedLocked() {
	if r.pin == pinGeocoded {
		r.sel.Latitude = nil
		r.sel.Longitude = nil
		r.pin = pinNone
	}
}

func triadFingerprint(sel Selection) uint64 {
	d := xxhash.New()
	for _, part := range []string{sel.Province, sel.District, sel.SubDistrict} {
		d.WriteString(part)
		d.Write([]byte{0})
	}
	return d.Sum64()
}
