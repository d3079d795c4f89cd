// Package authsdk is the Go client for the keystone REST API, and the home of
// the request and response types the server and client share.
//
// Unauthenticated calls (register, password reset, health) hang off SDKClient.
// Login returns a Session, which carries the access/refresh pair and renews
// the access token before it expires:
//
//	client := authsdk.NewSDKClient("https://keystone.example.com")
//	sess, err := client.Login(ctx, "alice@example.com", "correct horse 1")
//	if err != nil {
//		return err
//	}
//	me, err := sess.Me(ctx)
//
// Server errors come back as *APIError and can be matched with errors.Is
// against the predefined values:
//
//	if errors.Is(err, authsdk.ErrInvalidCredentials) { ... }
package authsdk
