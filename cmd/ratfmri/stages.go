package main

func init() {
	rootCmd.AddCommand(
		stageCommand("preproc", "Run scale, slice timing, realignment, registration and smoothing",
			"scale", "slicetime", "realign", "register", "smooth"),
		stageCommand("scale", "Rewrite voxel sizes by the configured upscaling factor", "scale"),
		stageCommand("fd", "Compute framewise displacement and the temporal mask", "fd"),
		stageCommand("denoise", "Regress nuisance signals out of the preprocessed series", "denoise"),
		stageCommand("filter", "Band-pass filter the denoised series", "filter"),
		stageCommand("extract", "Extract ROI time series from the atlas", "extract"),
		stageCommand("fc", "Compute connectivity matrices and seed correlation maps", "fc"),
		stageCommand("alff", "Compute ALFF and fALFF maps", "alff"),
		stageCommand("reho", "Compute regional homogeneity maps", "reho"),
	)
}
