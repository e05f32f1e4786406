// Package client is the Go client for a forcedmode server.
//
// Every method returns *Error on failure, classified by ErrorType so callers
// can tell a busy device (retry later) from a failed transition (the device
// was preserved, retrying will not help until the fault is fixed):
//
//	c := client.New("http://127.0.0.1:8080")
//	c.SetRetry(3, 500*time.Millisecond)
//
//	run, err := c.Orchestrate(ctx, nil)
//	switch {
//	case client.IsBusy(err):
//	    // still busy after all retries
//	case client.IsTransitionFailure(err):
//	    fmt.Println(client.GetTroubleshootingHint(err))
//	}
//
// Events subscribes to the live step and run stream over WebSocket.
package client
