package authsdk

import (
	"context"
	"net/http"
)

// BootstrapTokenHeader carries the operator's bootstrap secret.
const BootstrapTokenHeader = "X-Bootstrap-Token"

// Bootstrap creates the first SYSADMIN account. It only succeeds against an
// empty system configured with the same bootstrap token.
func (c *SDKClient) Bootstrap(
	ctx context.Context,
	token string,
	req BootstrapRequest,
) (*BootstrapResponse, error) {
	if errs := req.Validate(); errs != nil {
		return nil, NewValidationError(errs)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/bootstrap", req, map[string]string{
		BootstrapTokenHeader: token,
	})
	if err != nil {
		return nil, err
	}

	var bootstrapResp BootstrapResponse
	if err := decodeJSON(resp, &bootstrapResp, http.StatusCreated); err != nil {
		return nil, err
	}
	return &bootstrapResp, nil
}
