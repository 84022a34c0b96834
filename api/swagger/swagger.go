package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Shend Interview Booking API",
        "description": "Interview slot reservation and availability reconciliation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "OperatorToken": {"type": "apiKey", "in": "header", "name": "Authorization"},
        "OperatorKey": {"type": "apiKey", "in": "header", "name": "X-Operator-Key"}
    },
    "tags": [
        {"name": "Bookings", "description": "Candidate booking flow"},
        {"name": "Operator", "description": "Availability sync and booking roster"}
    ],
    "paths": {
        "/tracks/{track}/dates": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List dates with free slots",
                "parameters": [
                    {"name": "track", "in": "path", "required": true, "type": "string"},
                    {"name": "cohort", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown track", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracks/{track}/buckets": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List free time buckets",
                "parameters": [
                    {"name": "track", "in": "path", "required": true, "type": "string"},
                    {"name": "cohort", "in": "query", "type": "string"},
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracks/{track}/bookings": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Claim a slot in a time bucket",
                "parameters": [
                    {"name": "track", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ClaimBookingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "SLOT_TAKEN or ALREADY_BOOKED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracks/{track}/candidates/{candidate}/booking": {
            "get": {
                "tags": ["Bookings"],
                "summary": "Get a candidate's active booking",
                "parameters": [
                    {"name": "track", "in": "path", "required": true, "type": "string"},
                    {"name": "candidate", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active booking", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bookings/{id}/cancel": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Cancel a booking",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CancelBookingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "CANCELLATION_NOT_ALLOWED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/operator/sync/{track}": {
            "post": {
                "tags": ["Operator"],
                "summary": "Import availability and reconcile slots",
                "security": [{"OperatorToken": []}, {"OperatorKey": []}],
                "parameters": [
                    {"name": "track", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "SYNC_IN_PROGRESS", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "EXTERNAL_SOURCE_UNAVAILABLE", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Operator"],
                "summary": "Get the last sync report",
                "security": [{"OperatorToken": []}, {"OperatorKey": []}],
                "parameters": [
                    {"name": "track", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No report yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/operator/bookings": {
            "get": {
                "tags": ["Operator"],
                "summary": "List bookings",
                "security": [{"OperatorToken": []}, {"OperatorKey": []}],
                "parameters": [
                    {"name": "track", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "confirmed", "cancelled"]},
                    {"name": "date", "in": "query", "type": "string", "format": "date"},
                    {"name": "candidate_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/operator/bookings/export": {
            "get": {
                "tags": ["Operator"],
                "summary": "Download the booking roster",
                "produces": ["text/csv", "application/pdf"],
                "security": [{"OperatorToken": []}, {"OperatorKey": []}],
                "parameters": [
                    {"name": "track", "in": "query", "type": "string"},
                    {"name": "date", "in": "query", "type": "string", "format": "date"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Roster file", "schema": {"type": "file"}}
                }
            }
        }
    },
    "definitions": {
        "ClaimBookingRequest": {
            "type": "object",
            "required": ["candidate_id", "date", "time_start"],
            "properties": {
                "candidate_id": {"type": "string"},
                "cohort": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "time_start": {"type": "string", "example": "09:00"},
                "notes": {"type": "string"}
            }
        },
        "CancelBookingRequest": {
            "type": "object",
            "required": ["candidate_id"],
            "properties": {
                "candidate_id": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
