package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Counseling Booking API",
        "description": "Appointment slot booking for guidance counseling",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Slots",
            "description": "Bookable and booked 30 minute units"
        },
        {
            "name": "Appointments",
            "description": "Appointment lifecycle"
        },
        {
            "name": "Calendar",
            "description": "Month level booking badges"
        },
        {
            "name": "Counselors",
            "description": "Counselors and weekly availability"
        }
    ],
    "paths": {
        "/slots/bookable": {
            "get": {
                "tags": [
                    "Slots"
                ],
                "summary": "List bookable units",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "date",
                        "in": "query",
                        "type": "string",
                        "required": true,
                        "description": "YYYY-MM-DD"
                    },
                    {
                        "name": "counselorId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "consultationType",
                        "in": "query",
                        "type": "string",
                        "required": true,
                        "description": "Individual or Group"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/slots/booked": {
            "get": {
                "tags": [
                    "Slots"
                ],
                "summary": "List booked units",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "date",
                        "in": "query",
                        "type": "string",
                        "required": true,
                        "description": "YYYY-MM-DD"
                    },
                    {
                        "name": "counselorId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "consultationType",
                        "in": "query",
                        "type": "string",
                        "required": true,
                        "description": "Individual or Group"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/appointments": {
            "get": {
                "tags": [
                    "Appointments"
                ],
                "summary": "List appointments",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "counselorId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "description": "Comma separated statuses"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Appointments"
                ],
                "summary": "Book an appointment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateAppointmentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/appointments/{id}": {
            "get": {
                "tags": [
                    "Appointments"
                ],
                "summary": "Get appointment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Appointments"
                ],
                "summary": "Reschedule a pending appointment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateAppointmentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Appointments"
                ],
                "summary": "Delete a pending appointment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/appointments/{id}/cancel": {
            "post": {
                "tags": [
                    "Appointments"
                ],
                "summary": "Cancel an appointment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CancelAppointmentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/appointments/{id}/status": {
            "post": {
                "tags": [
                    "Appointments"
                ],
                "summary": "Change appointment status",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/TransitionAppointmentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/appointments/{id}/follow-ups": {
            "get": {
                "tags": [
                    "Appointments"
                ],
                "summary": "List follow-ups",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Appointments"
                ],
                "summary": "Book a follow-up session",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/CreateFollowUpRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/appointments/{id}/conflicts": {
            "post": {
                "tags": [
                    "Appointments"
                ],
                "summary": "Check whether an appointment could move to a slot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CheckConflictRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/calendar/stats": {
            "get": {
                "tags": [
                    "Calendar"
                ],
                "summary": "Monthly calendar stats",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "month",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "description": "Defaults to APPROVED"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/exports/schedule": {
            "get": {
                "tags": [
                    "Exports"
                ],
                "summary": "Export the appointment schedule as CSV",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "text/csv"
                ],
                "parameters": [
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "csv"
                        ]
                    },
                    {
                        "name": "counselorId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "description": "Comma separated statuses"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "format": "date"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "format": "date"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File attachment"
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/counselors": {
            "get": {
                "tags": [
                    "Counselors"
                ],
                "summary": "List active counselors",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/counselors/{id}/availability": {
            "get": {
                "tags": [
                    "Counselors"
                ],
                "summary": "Weekly availability of a counselor",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Counselors"
                ],
                "summary": "Replace one weekday of availability",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SetAvailabilityRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "CreateAppointmentRequest": {
            "type": "object",
            "properties": {
                "studentId": {
                    "type": "string"
                },
                "counselorId": {
                    "type": "string"
                },
                "noPreference": {
                    "type": "boolean"
                },
                "date": {
                    "type": "string",
                    "example": "2025-03-03"
                },
                "timeUnit": {
                    "type": "string",
                    "example": "8:00 AM - 8:30 AM"
                },
                "consultationType": {
                    "type": "string",
                    "enum": [
                        "Individual",
                        "Group"
                    ]
                },
                "methodType": {
                    "type": "string"
                },
                "purpose": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                }
            },
            "required": [
                "date",
                "timeUnit",
                "consultationType",
                "methodType",
                "purpose"
            ]
        },
        "UpdateAppointmentRequest": {
            "type": "object",
            "properties": {
                "counselorId": {
                    "type": "string"
                },
                "noPreference": {
                    "type": "boolean"
                },
                "date": {
                    "type": "string",
                    "example": "2025-03-03"
                },
                "timeUnit": {
                    "type": "string",
                    "example": "8:00 AM - 8:30 AM"
                },
                "consultationType": {
                    "type": "string",
                    "enum": [
                        "Individual",
                        "Group"
                    ]
                },
                "methodType": {
                    "type": "string"
                },
                "purpose": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                }
            },
            "required": [
                "date",
                "timeUnit",
                "consultationType",
                "methodType",
                "purpose"
            ]
        },
        "CancelAppointmentRequest": {
            "type": "object",
            "properties": {
                "reason": {
                    "type": "string"
                }
            },
            "required": [
                "reason"
            ]
        },
        "TransitionAppointmentRequest": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "APPROVED",
                        "REJECTED",
                        "COMPLETED",
                        "CANCELLED"
                    ]
                },
                "reason": {
                    "type": "string"
                }
            },
            "required": [
                "status"
            ]
        },
        "CreateFollowUpRequest": {
            "type": "object",
            "properties": {
                "counselorId": {
                    "type": "string"
                },
                "date": {
                    "type": "string",
                    "example": "2025-03-03"
                },
                "timeUnit": {
                    "type": "string",
                    "example": "8:00 AM - 8:30 AM"
                },
                "consultationType": {
                    "type": "string",
                    "enum": [
                        "Individual",
                        "Group"
                    ]
                },
                "methodType": {
                    "type": "string"
                },
                "purpose": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                }
            }
        },
        "CheckConflictRequest": {
            "type": "object",
            "properties": {
                "counselorId": {
                    "type": "string"
                },
                "noPreference": {
                    "type": "boolean"
                },
                "date": {
                    "type": "string",
                    "example": "2025-03-03"
                },
                "timeUnit": {
                    "type": "string",
                    "example": "8:00 AM - 8:30 AM"
                },
                "consultationType": {
                    "type": "string",
                    "enum": [
                        "Individual",
                        "Group"
                    ]
                }
            },
            "required": [
                "date",
                "timeUnit"
            ]
        },
        "SetAvailabilityRequest": {
            "type": "object",
            "properties": {
                "dayOfWeek": {
                    "type": "integer",
                    "minimum": 1,
                    "maximum": 5
                },
                "ranges": {
                    "type": "array",
                    "items": {
                        "type": "string",
                        "example": "8:00 AM - 12:00 PM"
                    }
                }
            },
            "required": [
                "dayOfWeek"
            ]
        },
        "ConflictResult": {
            "type": "object",
            "properties": {
                "hasConflict": {
                    "type": "boolean"
                },
                "conflictType": {
                    "type": "string",
                    "enum": [
                        "COUNSELOR_UNAVAILABLE",
                        "CAPACITY_EXCEEDED",
                        "COUNSELOR_NOT_FOUND"
                    ]
                },
                "message": {
                    "type": "string"
                },
                "counselorId": {
                    "type": "string"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
