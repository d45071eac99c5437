package ui

import (
	"diskscout/internal/domain"
	"diskscout/internal/services"
)

type scanResultMsg struct {
	id     int
	result domain.ScanResult
	err    error
}

type progressTickMsg struct {
	id       int
	progress services.ScanProgress
}

type startScanMsg struct {
	force bool
}
