// Package client is the REST client the CLI subcommands use to talk to
// a running docmill server.
//
// # Architecture
//
// One Client per target server, holding the base URL and a shared
// http.Client with a request timeout. Every method maps to one API
// endpoint, sends the request, and decodes the JSON response into the
// exported mirror types. Non-2xx responses are surfaced as errors
// carrying the server's error message, so command output matches what
// an operator would see with curl.
//
// # Usage
//
//	c := client.New("http://localhost:8000")
//	action, err := c.CreateTask(&types.CreateTaskRequest{
//		TaskType:   types.TaskTypePDFToMarkdown,
//		BucketName: "reports",
//		FilePath:   "docs/rep.pdf",
//	})
//	if err != nil {
//		return err
//	}
//	fmt.Println(action.Message)
//
// # Integration Points
//
//   - pkg/api: the server side of every call.
//   - pkg/types: request and task view types shared with the server.
//   - cmd/docmill: the CLI subcommands built on this client.
package client
