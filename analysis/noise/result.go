package noise

// Detection is a claim that a narrowband feature exists near F0Hz. It is
// derived from one estimator's statistics, not authoritative; two detectors
// may disagree about the same record.
type Detection struct {
	Type        string  `json:"type"`        // "line", "sk", "coh", "comb", "ar", "corr"
	F0Hz        float64 `json:"f0_hz"`       // Feature center frequency
	Metric      float64 `json:"metric"`      // Value of MetricName for this feature
	MetricName  string  `json:"metric_name"` // "SNR_dB", "MSC", "SK", "Occupancy_%", "correlation"
	BandwidthHz float64 `json:"bw_hz"`       // Span of the contiguous run above threshold
	Notes       string  `json:"notes"`
}

// Image is a 2-D detector payload with its display extent and autoscaled
// color limits.
type Image struct {
	Data   [][]float64 `json:"data"`   // Row-major, rows are the Y axis bottom-up
	Extent [4]float64  `json:"extent"` // xmin, xmax, ymin, ymax
	VMin   float64     `json:"vmin"`
	VMax   float64     `json:"vmax"`
	XLabel string      `json:"xlabel"`
	YLabel string      `json:"ylabel"`
}

// Result is the unit every detector returns: either a 1-D curve
// (PlotX/PlotY) or a 2-D image, the detection list, the frequency
// resolution and the echoed parameter set. Created once per analysis run
// and read-only afterwards.
type Result struct {
	Method     string         `json:"method"`
	PlotX      []float64      `json:"plot_x,omitempty"`
	PlotY      []float64      `json:"plot_y,omitempty"`
	Image      *Image         `json:"image,omitempty"`
	Detections []Detection    `json:"detections"`
	DfHz       float64        `json:"df_hz"` // 0 when frequency resolution is inapplicable
	Params     map[string]any `json:"params"`
	Cancelled  bool           `json:"cancelled"`
}
