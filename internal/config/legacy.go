package config

import (
	"strings"

	"etlpipe/internal/domain"
)

// legacyConfig is the older flat config shape:
//
//	{"data_sources": [{"source_name": "...", "data_type": "csv", "data_urls": "..."}]}
//
// It is folded into Config.Sources.
type legacyConfig struct {
	DataSources []legacySource `json:"data_sources" yaml:"data_sources"`
}

type legacySource struct {
	SourceName  string `json:"source_name" yaml:"source_name"`
	DataType    string `json:"data_type" yaml:"data_type"`
	DataURLs    string `json:"data_urls" yaml:"data_urls"`
	APIEndpoint string `json:"api_endpoint" yaml:"api_endpoint"`
	Dataset     string `json:"dataset" yaml:"dataset"`
	FileName    string `json:"file_name" yaml:"file_name"`
	Delimiter   string `json:"delimiter" yaml:"delimiter"`
}

// legacyCSVDelimiter is the delimiter the legacy "csv" type always used.
const legacyCSVDelimiter = ";"

func (l legacyConfig) normalize() []domain.SourceDescriptor {
	out := make([]domain.SourceDescriptor, 0, len(l.DataSources))
	for _, s := range l.DataSources {
		d := domain.SourceDescriptor{
			Name:      s.SourceName,
			Delimiter: s.Delimiter,
			FileName:  s.FileName,
		}
		switch strings.ToLower(s.DataType) {
		case "csv":
			d.Method = domain.AccessDirectCSV
			d.Location = firstNonEmpty(s.DataURLs, s.APIEndpoint)
			if d.Delimiter == "" {
				d.Delimiter = legacyCSVDelimiter
			}
		case "gzip":
			d.Method = domain.AccessGzipCSV
			d.Location = firstNonEmpty(s.APIEndpoint, s.DataURLs)
		case "kaggle":
			d.Method = domain.AccessManagedDataset
			d.Location = firstNonEmpty(s.Dataset, s.APIEndpoint, s.DataURLs)
		default:
			// Left for Validate to reject.
			d.Method = domain.AccessMethod(s.DataType)
			d.Location = firstNonEmpty(s.DataURLs, s.APIEndpoint, s.Dataset)
		}
		out = append(out, d)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
