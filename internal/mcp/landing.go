package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>docqa</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f8fafc; color: #1e293b; margin: 0; padding: 3rem 1rem; }
  main { max-width: 640px; margin: 0 auto; }
  h1 { font-size: 1.6rem; margin-bottom: 0.25rem; }
  p.lead { color: #475569; margin-top: 0; }
  h2 { font-size: 0.8rem; text-transform: uppercase; letter-spacing: 0.08em; color: #64748b; margin-top: 2rem; }
  table { border-collapse: collapse; width: 100%; font-size: 0.9rem; }
  td { padding: 0.35rem 0.5rem; border-bottom: 1px solid #e2e8f0; vertical-align: top; }
  code { font-family: "SF Mono", Menlo, monospace; color: #4338ca; }
  pre { background: #0f172a; color: #e2e8f0; padding: 1rem; border-radius: 6px; overflow-x: auto; }
</style>
</head>
<body>
<main>
  <h1>docqa</h1>
  <p class="lead">Ask questions about your own text and markdown documents.</p>

  <h2>HTTP API</h2>
  <table>
    <tr><td><code>POST /chat</code></td><td>Ask a question, optionally within a session or document</td></tr>
    <tr><td><code>POST /upload</code></td><td>Upload and index a .txt or .md file</td></tr>
    <tr><td><code>GET /documents</code></td><td>List indexed documents</td></tr>
    <tr><td><code>GET /chat/history</code></td><td>List chat sessions</td></tr>
    <tr><td><code>GET /training-history</code></td><td>List ingestion runs</td></tr>
    <tr><td><code>GET /health</code></td><td>Index health</td></tr>
  </table>

  <h2>MCP</h2>
  <p>Tools <code>ask_documents</code>, <code>search_documents</code>, <code>list_documents</code> and <code>get_index_status</code> are served over Streamable HTTP at <code>/mcp</code>.</p>
  <pre><code>curl -X POST localhost:8080/chat -d '{"message": "What does ls do?"}'</code></pre>
</main>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingHTML))
	}
}
