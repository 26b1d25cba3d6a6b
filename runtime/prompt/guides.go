package prompt

// Guides maps a library name (as produced by runtime/librarydetect) to a
// short, read-only API reference the Plan prompt inlines when that library
// is selected for a request. Content is deliberately terse, not a restatement
// of documentation the model already has. The dask and polars guides cover
// the lazy-frame mistakes the Code Validator's per-library rules catch; the
// other guides carry usage reminders that no validator rule checks.
var Guides = map[string]string{
	"dask": "dask: DataFrames are lazy. Call .compute() before plotting, " +
		"calling len(), or otherwise materializing a result. Prefer " +
		"dd.read_csv/dd.read_parquet over pandas for inputs larger than " +
		"memory.",
	"polars": "polars: LazyFrame operations build a query plan. Call " +
		".collect() before plotting or calling len(). Use pl.read_csv for " +
		"an eager DataFrame, pl.scan_csv for a LazyFrame.",
	"matplotlib": "matplotlib: call plt.show() or return the Figure to " +
		"render in the notebook; don't forget plt.close() in loops that " +
		"create many figures to avoid unbounded memory growth.",
	"pandas": "pandas: prefer vectorized operations over iterrows(). " +
		"DataFrame.copy() before mutating a slice to avoid " +
		"SettingWithCopyWarning.",
	"numpy": "numpy: prefer vectorized array operations over Python loops. " +
		"np.asarray() is a no-op copy-avoiding cast when the input is " +
		"already an ndarray of the right dtype.",
	"scikit-learn": "scikit-learn: fit on training data only, never on the " +
		"full dataset before a train/test split, to avoid leakage.",
	"pyspark": "pyspark: DataFrame transformations are lazy until an " +
		"action (collect, show, count) triggers execution.",
}
