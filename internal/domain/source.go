package domain

// AccessMethod determines how a source's raw bytes are obtained.
type AccessMethod string

const (
	AccessDirectCSV      AccessMethod = "direct_csv"      // one HTTP GET, delimited text body
	AccessGzipCSV        AccessMethod = "gzip_csv"        // one HTTP GET, gzip-compressed delimited text
	AccessManagedDataset AccessMethod = "managed_dataset" // external dataset CLI downloads files to disk
	AccessCSVFile        AccessMethod = "csv_file"        // local delimited file
	AccessJSONAPI        AccessMethod = "json_api"        // HTTP endpoint returning a JSON array of objects
	AccessJSONFile       AccessMethod = "json_file"       // local JSON file holding an array of objects
	AccessDatabase       AccessMethod = "database"        // query against an external database
)

// AccessMethods lists every known access method in display order.
func AccessMethods() []AccessMethod {
	return []AccessMethod{
		AccessDirectCSV,
		AccessGzipCSV,
		AccessManagedDataset,
		AccessCSVFile,
		AccessJSONAPI,
		AccessJSONFile,
		AccessDatabase,
	}
}

// Valid reports whether m is a known access method.
func (m AccessMethod) Valid() bool {
	for _, known := range AccessMethods() {
		if m == known {
			return true
		}
	}
	return false
}

// SourceDescriptor describes one configured external dataset.
// Loaded once per run and never mutated afterwards.
type SourceDescriptor struct {
	Name      string       `json:"name" yaml:"name"`
	Method    AccessMethod `json:"method" yaml:"method"`
	Location  string       `json:"location" yaml:"location"`                       // URL, dataset id, file path or DSN
	FileName  string       `json:"fileName,omitempty" yaml:"fileName,omitempty"`   // managed_dataset: file to parse after download
	Delimiter string       `json:"delimiter,omitempty" yaml:"delimiter,omitempty"` // default ","
	Driver    string       `json:"driver,omitempty" yaml:"driver,omitempty"`       // database: sqlite | mysql | postgres | mongodb
	Query     string       `json:"query,omitempty" yaml:"query,omitempty"`         // database: SQL, or JSON query for mongodb
	DataPath  string       `json:"dataPath,omitempty" yaml:"dataPath,omitempty"`   // json_api, json_file: dot path to the array
}

// Comma returns the configured delimiter rune, defaulting to ','.
func (s SourceDescriptor) Comma() rune {
	if s.Delimiter == "" {
		return ','
	}
	if s.Delimiter == `\t` || s.Delimiter == "tab" {
		return '\t'
	}
	return []rune(s.Delimiter)[0]
}
