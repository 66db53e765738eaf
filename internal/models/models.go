package models

// Record is one row of the stunting table.
type Record struct {
	ProvinceCode string   `json:"kode_provinsi,omitempty"`
	Province     string   `json:"nama_provinsi"`
	RegencyCode  string   `json:"kode_kabupaten_kota,omitempty"`
	Regency      string   `json:"nama_kabupaten_kota"`
	Prevalence   *float64 `json:"prevalensi_balita_stunting"`
	Unit         string   `json:"satuan"`
	Year         int      `json:"tahun"`
}

// KPIs are the headline numbers for the current filter scope.
// A nil pointer means there was nothing to average.
type KPIs struct {
	Label        string   `json:"label"`
	NationalMean *float64 `json:"national_mean"`
	FilteredMean *float64 `json:"filtered_mean"`
	FilteredMax  *float64 `json:"filtered_max"`
	FilteredMin  *float64 `json:"filtered_min"`
	Count        int      `json:"count"`
}

type GroupMean struct {
	Key   string  `json:"key"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

type BoxSummary struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Options are the selectable values for each filter dropdown.
type Options struct {
	Years     []int    `json:"years"`
	Provinces []string `json:"provinces"`
	Regencies []string `json:"regencies"`
}

// Notice replaces a display that has nothing to show.
type Notice struct {
	Empty   bool   `json:"empty"`
	Message string `json:"message"`
}

type Page struct {
	Data   []Record `json:"data"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}
