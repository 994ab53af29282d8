// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpserver

import (
	"net/http"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/metrics"
)

// classifyError maps an apierr.Error's Kind to the HTTP status and
// metrics.ErrorCode the handlers use, falling back to a generic 500 for
// an error that didn't come from an internal component (a programming
// defect, not a documented failure mode).
func classifyError(err error) (status int, code metrics.ErrorCode, message string) {
	apiErr, ok := apierr.As(err)
	if !ok {
		return http.StatusInternalServerError, metrics.ErrorInternal, "internal error"
	}

	switch apiErr.Kind {
	case apierr.KindValidation:
		code = metrics.ErrorValidation
	case apierr.KindUpstreamTransient:
		code = metrics.ErrorUpstreamTransient
	case apierr.KindUpstreamPermanent:
		code = metrics.ErrorUpstreamPermanent
	case apierr.KindResource, apierr.KindDimensionMismatch:
		code = metrics.ErrorResource
	case apierr.KindRateLimited:
		code = metrics.ErrorRateLimited
	case apierr.KindNotFound:
		code = metrics.ErrorNotFound
	case apierr.KindCancelled:
		code = metrics.ErrorCancelled
	default:
		code = metrics.ErrorInternal
	}
	return apiErr.Status, code, apiErr.Message
}
