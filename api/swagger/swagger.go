package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Basmagi Quiz Gateway",
        "description": "Offline caching gateway and admin API for the Basmagi quiz platform",
        "version": "2.4.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Offline", "description": "Caching worker lifecycle and client messaging"},
        {"name": "Authentication", "description": "Shared secret admin login"},
        {"name": "Quizzes", "description": "Quiz uploads staged for the sync tool"},
        {"name": "Exports", "description": "PDF, CSV and XLSX quiz exports"},
        {"name": "Metrics", "description": "Gateway observability"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/sw/status": {
            "get": {
                "tags": ["Offline"],
                "summary": "Caching worker status",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sw/messages": {
            "post": {
                "tags": ["Offline"],
                "summary": "Send a command to the caching worker",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ClientMessage"}}
                ],
                "responses": {
                    "200": {"description": "Applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Scheduled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown or missing type", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sw/clients": {
            "get": {
                "tags": ["Offline"],
                "summary": "WebSocket channel carrying worker messages",
                "responses": {
                    "101": {"description": "Switching protocols"}
                }
            }
        },
        "/api/v1/auth": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate admin",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quizzes": {
            "post": {
                "tags": ["Quizzes"],
                "summary": "Upload a quiz",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UploadQuizRequest"}}
                ],
                "responses": {
                    "201": {"description": "Staged", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid quiz", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Quiz already exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Quiz too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quiz-paths": {
            "get": {
                "tags": ["Quizzes"],
                "summary": "List upload paths",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quiz-data": {
            "get": {
                "tags": ["Quizzes"],
                "summary": "Serve an uploaded quiz",
                "produces": ["application/json"],
                "parameters": [
                    {"name": "path", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Quiz document"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quiz-manifest": {
            "get": {
                "tags": ["Quizzes"],
                "summary": "List database hosted quizzes",
                "description": "Uploaded quizzes in the quiz-manifest.json shape; quiz paths point at quiz-data",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Manifest"},
                    "500": {"description": "Database error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Database unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export a quiz",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Quiz not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an export",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Expired or missing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Gateway metrics summary",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ClientMessage": {
            "type": "object",
            "required": ["type"],
            "properties": {
                "type": {"type": "string", "enum": ["SKIP_WAITING", "CHECK_FOR_UPDATES", "RECACHE_EXAMS", "CLEAR_CACHE"]}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["adminId"],
            "properties": {
                "adminId": {"type": "string"}
            }
        },
        "UploadQuizRequest": {
            "type": "object",
            "required": ["category", "subject", "quiz"],
            "properties": {
                "category": {"type": "string"},
                "subject": {"type": "string"},
                "subfolder": {"type": "string"},
                "quiz": {"type": "object"}
            }
        },
        "ExportRequest": {
            "type": "object",
            "required": ["quizPath", "format"],
            "properties": {
                "quizPath": {"type": "string"},
                "format": {"type": "string", "enum": ["pdf", "csv", "xlsx"]},
                "answers": {"type": "array", "items": {"type": "integer", "x-nullable": true}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
