package site

import (
	_ "github.com/mapsite/mapsite/internal/source/csv"
	_ "github.com/mapsite/mapsite/internal/source/kml"
)
