package llm

import (
	"docstyler/internal/domain"
	"docstyler/internal/httpx"
)

type Usage = domain.Usage

var externalHTTPClient = httpx.ExternalHTTPClient()
