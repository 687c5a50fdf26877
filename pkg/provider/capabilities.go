package provider

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rhuss/chatwire/pkg/api"
)

// ValidateCapabilities checks a gateway request against a provider's
// capabilities. It returns an APIError naming the unsupported feature, or
// nil if the request can be served.
func ValidateCapabilities(caps Capabilities, req *api.ChatRequest) *api.APIError {
	if req.Model != "" && len(caps.Models) > 0 && !slices.Contains(caps.Models, req.Model) {
		return api.NewInvalidRequestError("model",
			fmt.Sprintf("unknown model %q; supported models: %s", req.Model, strings.Join(caps.Models, ", ")))
	}

	if caps.Vision {
		return nil
	}
	for i, msg := range req.Messages {
		for _, part := range msg.Content.Parts {
			if part.Type == api.ContentTypeImageURL {
				return api.NewInvalidRequestError(fmt.Sprintf("messages[%d].content", i),
					"the selected provider does not accept image inputs")
			}
		}
	}
	return nil
}
