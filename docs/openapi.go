// Package docs holds the hand-maintained OpenAPI document describing
// httpapi's four public operations (recall, search, per-tool query,
// export) plus the health/version/audit admin routes. Served by
// internal/httpapi via swaggo/http-swagger, per SPEC_FULL.md's domain
// stack — generated with swag's annotations is out of scope here since
// the surface is small enough to author directly.
package docs

// OpenAPIJSON is the raw OpenAPI 3.0 document, served verbatim at
// /docs/doc.json.
const OpenAPIJSON = `{
  "openapi": "3.0.0",
  "info": {
    "title": "gandalf-aggregator API",
    "description": "Local conversation aggregator: recall, search, per-tool raw dump, and export across Cursor, Claude Code, and Windsurf conversation stores.",
    "version": "1.0"
  },
  "paths": {
    "/api/health": {
      "get": {
        "summary": "Readiness probe",
        "responses": { "200": { "description": "Server is ready" } }
      }
    },
    "/api/version": {
      "get": {
        "summary": "Server version",
        "responses": { "200": { "description": "Version string" } }
      }
    },
    "/api/recall": {
      "post": {
        "summary": "Recall recent conversations ranked by relevance",
        "requestBody": {
          "content": {
            "application/json": {
              "schema": { "$ref": "#/components/schemas/RecallRequest" }
            }
          }
        },
        "responses": {
          "200": {
            "description": "Aggregated, shaped response",
            "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Envelope" } } }
          },
          "422": { "description": "Invalid request parameters" }
        }
      }
    },
    "/api/search": {
      "post": {
        "summary": "Search conversations by keyword",
        "requestBody": {
          "content": {
            "application/json": {
              "schema": { "$ref": "#/components/schemas/SearchRequest" }
            }
          }
        },
        "responses": {
          "200": {
            "description": "Aggregated, shaped response",
            "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Envelope" } } }
          },
          "422": { "description": "Invalid request parameters (e.g. empty query)" }
        }
      }
    },
    "/api/query/{tool}": {
      "get": {
        "summary": "Raw dump of one source's conversations",
        "parameters": [
          { "name": "tool", "in": "path", "required": true, "schema": { "type": "string", "enum": ["cursor", "claude-code", "windsurf"] } },
          { "name": "format", "in": "query", "schema": { "type": "string" } },
          { "name": "limit", "in": "query", "schema": { "type": "integer" } }
        ],
        "responses": {
          "200": { "description": "Raw conversations in json/markdown/tool-native format" },
          "400": { "description": "Invalid tool or format" }
        }
      }
    },
    "/api/export": {
      "post": {
        "summary": "Export individual conversations to files",
        "requestBody": {
          "content": {
            "application/json": {
              "schema": { "$ref": "#/components/schemas/ExportRequest" }
            }
          }
        },
        "responses": {
          "200": { "description": "Export result summary" },
          "400": { "description": "Invalid format or limit" }
        }
      }
    },
    "/api/audit/runs": {
      "get": {
        "summary": "List recorded aggregation runs (only when an audit store is configured)",
        "parameters": [
          { "name": "project_root", "in": "query", "schema": { "type": "string" } },
          { "name": "limit", "in": "query", "schema": { "type": "integer" } }
        ],
        "responses": { "200": { "description": "List of aggregation runs" } }
      }
    }
  },
  "components": {
    "schemas": {
      "RecallRequest": {
        "type": "object",
        "properties": {
          "fast_mode": { "type": "boolean" },
          "days_lookback": { "type": "integer" },
          "limit": { "type": "integer" },
          "min_score": { "type": "number" },
          "conversation_types": { "type": "array", "items": { "type": "string" } },
          "tools": { "type": "array", "items": { "type": "string" } },
          "user_prompt": { "type": "string" },
          "search_query": { "type": "string" },
          "project_root": { "type": "string" }
        }
      },
      "SearchRequest": {
        "type": "object",
        "required": ["query"],
        "properties": {
          "query": { "type": "string" },
          "days_lookback": { "type": "integer" },
          "limit": { "type": "integer" },
          "min_score": { "type": "number" },
          "include_content": { "type": "boolean" },
          "conversation_types": { "type": "array", "items": { "type": "string" } },
          "tools": { "type": "array", "items": { "type": "string" } },
          "project_root": { "type": "string" }
        }
      },
      "ExportRequest": {
        "type": "object",
        "properties": {
          "format": { "type": "string", "enum": ["json", "md", "markdown", "txt"] },
          "output_dir": { "type": "string" },
          "limit": { "type": "integer" },
          "conversation_filter": { "type": "string" }
        }
      },
      "Envelope": {
        "type": "object",
        "properties": {
          "request_id": { "type": "string" },
          "status": { "type": "string" },
          "conversations": { "type": "array", "items": { "type": "object" } },
          "conversations_lightweight": { "type": "array", "items": { "type": "object" } },
          "available_tools": { "type": "array", "items": { "type": "string" } },
          "per_tool_results": { "type": "array", "items": { "type": "object" } },
          "context_keywords": { "type": "array", "items": { "type": "string" } },
          "partial": { "type": "boolean" },
          "cached": { "type": "boolean" },
          "success_rate_percent": { "type": "number" },
          "summary_mode": { "type": "boolean" },
          "tool_summaries": { "type": "object" },
          "total_conversations": { "type": "integer" }
        }
      }
    }
  }
}`
