package meta

// Key names a metadata variable every indexed file must carry.
type Key string

const (
	KeyNetwork       Key = "network"
	KeyStation       Key = "station"
	KeyInstrument    Key = "instrument"
	KeyVariable      Key = "variable"
	KeyTimerangeFrom Key = "timerange_from"
	KeyTimerangeTo   Key = "timerange_to"
	KeyLatitude      Key = "latitude"
	KeyLongitude     Key = "longitude"
	KeyElevation     Key = "elevation"
)

// RequiredKeys lists the keys that must hold exactly one value after
// reconciliation.
var RequiredKeys = []Key{
	KeyNetwork,
	KeyStation,
	KeyInstrument,
	KeyVariable,
	KeyTimerangeFrom,
	KeyTimerangeTo,
	KeyLatitude,
	KeyLongitude,
	KeyElevation,
}

// Station attribute names.
const (
	LC2000        = "lc_2000"
	LC2005        = "lc_2005"
	LC2010        = "lc_2010"
	LCInsitu      = "lc_insitu"
	ClimateKG     = "climate_KG"
	ClimateInsitu = "climate_insitu"
	Saturation    = "saturation"
	ClayFraction  = "clay_fraction"
	SandFraction  = "sand_fraction"
	SiltFraction  = "silt_fraction"
	OrganicCarbon = "organic_carbon"
)

// StaticKeys lists the station attributes in template order.
var StaticKeys = []string{
	LC2000, LC2005, LC2010, LCInsitu,
	ClimateKG, ClimateInsitu,
	Saturation, ClayFraction, SandFraction, SiltFraction, OrganicCarbon,
}

// IsStaticKey reports whether name is a station attribute.
func IsStaticKey(name string) bool {
	for _, k := range StaticKeys {
		if k == name {
			return true
		}
	}
	return false
}

// FromTemplate returns the all-default station metadata: every static key
// holding the missing sentinel.
func FromTemplate() MetaData {
	vars := make([]MetaVar, 0, len(StaticKeys))
	for _, k := range StaticKeys {
		vars = append(vars, NewVar(k, Null()))
	}
	return New(vars...)
}

// VariableLUT maps filename variable tokens to canonical variable names.
var VariableLUT = map[string]string{
	"sm":   "soil_moisture",
	"ts":   "soil_temperature",
	"su":   "soil_suction",
	"p":    "precipitation",
	"ta":   "air_temperature",
	"fc":   "field_capacity",
	"wp":   "permanent_wilting_point",
	"paw":  "plant_available_water",
	"ppaw": "potential_plant_available_water",
	"sat":  "saturation",
	"si_h": "silt_fraction",
	"sd":   "snow_depth",
	"sa_h": "sand_fraction",
	"cl_h": "clay_fraction",
	"oc_h": "organic_carbon",
	"sweq": "snow_water_equivalent",
	"tsf":  "surface_temperature",
	"tsfq": "surface_temperature_quality_flag_original",
}

// CanonicalVariable maps a filename token through VariableLUT. Unmapped
// tokens pass through unchanged.
func CanonicalVariable(token string) string {
	if v, ok := VariableLUT[token]; ok {
		return v
	}
	return token
}

var keyKinds = map[string]Kind{
	string(KeyNetwork):       KindString,
	string(KeyStation):       KindString,
	string(KeyInstrument):    KindString,
	string(KeyVariable):      KindString,
	string(KeyTimerangeFrom): KindTime,
	string(KeyTimerangeTo):   KindTime,
	string(KeyLatitude):      KindFloat,
	string(KeyLongitude):     KindFloat,
	string(KeyElevation):     KindFloat,
	LC2000:                   KindFloat,
	LC2005:                   KindFloat,
	LC2010:                   KindFloat,
	LCInsitu:                 KindString,
	ClimateKG:                KindString,
	ClimateInsitu:            KindString,
}

// KindOf returns the kind values stored under name always have, or KindNull
// when the kind depends on the content (soil attributes, custom keys).
func KindOf(name string) Kind {
	return keyKinds[name]
}
