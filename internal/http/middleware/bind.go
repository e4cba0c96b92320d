package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin/binding"
)

// StrictJSON binds a JSON body and rejects fields the target type does not declare.
var StrictJSON binding.Binding = strictJSON{}

type strictJSON struct{}

func (strictJSON) Name() string { return "json" }

func (strictJSON) Bind(req *http.Request, obj any) error {
	if req == nil || req.Body == nil {
		return errors.New("invalid request")
	}
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	if errDecode := decoder.Decode(obj); errDecode != nil {
		return errDecode
	}
	if binding.Validator == nil {
		return nil
	}
	return binding.Validator.ValidateStruct(obj)
}
