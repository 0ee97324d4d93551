package repository

import (
	"healthcheck_srv/internal/domain/report"
)

// ResultRenderer turns a finished run into a downloadable document.
type ResultRenderer interface {
	Render(result report.Result) ([]byte, error)
	MimeType() string
	FileExtension() string
}
