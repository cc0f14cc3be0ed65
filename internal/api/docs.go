package api

// docsHTML pairs a short route overview with the interactive OpenAPI
// reference rendered from /openapi.json.
const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>AutoSnapper API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { margin: 0; background: #111418; color: #e6e6e6; font-family: system-ui, sans-serif; }
    header { padding: 1rem 1.5rem; border-bottom: 1px solid #2a2f36; }
    header h1 { margin: 0 0 .25rem; font-size: 1.25rem; }
    header p { margin: .25rem 0; color: #9aa4b2; font-size: .9rem; }
    table { border-collapse: collapse; margin-top: .75rem; font-size: .85rem; }
    td { padding: .2rem .75rem .2rem 0; vertical-align: top; }
    code { color: #7cc4ff; }
    #reference { height: calc(100vh - 17rem); }
  </style>
</head>
<body>
  <header>
    <h1>AutoSnapper</h1>
    <p>Server-rendered page screenshots. <code>GET /</code> answers <code>AutoSnapper Backend is Live!</code> when the service is up.</p>
    <table>
      <tr><td><code>POST /api/screenshot</code></td><td><code>{"url": "https://..."}</code> returns <code>{"imageData": base64 PNG, "cached": bool}</code></td></tr>
      <tr><td><code>GET /api/history?limit=N</code></td><td>past captures, newest first</td></tr>
      <tr><td><code>GET /api/history/{id}/image</code></td><td>raw PNG of one capture</td></tr>
      <tr><td><code>DELETE /api/history/{id}</code></td><td>drop a capture with its image and cache entry</td></tr>
      <tr><td><code>GET /api/events</code></td><td>server-sent <code>capture</code> and <code>delete</code> events, filter with <code>?types=capture</code></td></tr>
      <tr><td><code>GET /api/events/ws</code></td><td>the same stream as websocket JSON frames <code>{"type", "payload"}</code></td></tr>
      <tr><td><code>GET /health</code></td><td>status, capture backend and uptime</td></tr>
    </table>
  </header>
  <div id="reference">
    <elements-api
      apiDescriptionUrl="/openapi.json"
      router="hash"
      layout="sidebar"
      tryItCredentialsPolicy="same-origin"
      hideSchemas
      darkMode
    />
  </div>
</body>
</html>`
