package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack/core"
)

func badRequestError(source error, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryBadInput)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryBadInput, message)
	}
	err = err.WithCode(http.StatusBadRequest).WithTextCode(core.ErrorTextBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func failure(method string, statusCode int, source error) error {
	return &core.TransportError{Method: method, StatusCode: statusCode, Err: source}
}
