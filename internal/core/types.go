package core

const (
	MnemoName          = "mnemo"
	MnemoRepositoryURL = "https://github.com/sandevgo/mnemo"
	MnemoVersion       = "0.1.0"
)
