// Package mcp connects to external MCP (Model Context Protocol)
// servers and exposes each one's tools as a capability group, so the
// model loads them with get_<server>_tools like any native category.
//
// Sessions use the official go-sdk over stdio (subprocess) or
// streamable HTTP. This package is a client only.
package mcp
