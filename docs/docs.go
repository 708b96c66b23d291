// Package docs holds the OpenAPI description served under /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/conversation/get-conversation": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns one conversation, addressed by id or by the other participant, with a page of its messages in ascending order",
                "produces": ["application/json"],
                "tags": ["conversation"],
                "summary": "Get a conversation",
                "parameters": [
                    {"type": "string", "description": "Conversation id (exclusive with friend_id)", "name": "conversation_id", "in": "query"},
                    {"type": "string", "description": "Other participant (exclusive with conversation_id)", "name": "friend_id", "in": "query"},
                    {"type": "string", "description": "RFC 3339 cursor; messages strictly older", "name": "before", "in": "query"},
                    {"type": "string", "description": "RFC 3339 cursor; messages strictly newer, wins over before", "name": "after", "in": "query"},
                    {"type": "integer", "description": "Page size 1..50, default 20", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ConversationWithMessages"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/conversation/list-conversations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns every conversation of the caller with its messages; after filters on last message date",
                "produces": ["application/json"],
                "tags": ["conversation"],
                "summary": "List conversations",
                "parameters": [
                    {"type": "string", "description": "RFC 3339; only conversations active since", "name": "after", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.ConversationWithMessages"}}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/conversation/online-users": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Users the caller has a conversation with that currently hold a live session",
                "produces": ["application/json"],
                "tags": ["conversation"],
                "summary": "Online friends",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.onlineFriendsResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "conversation_id": {"type": "string"},
                "sender_id": {"type": "string"},
                "message": {"type": "string"},
                "sending_time": {"type": "string", "format": "date-time"}
            }
        },
        "domain.ConversationWithMessages": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "participants": {"type": "array", "items": {"type": "string"}},
                "last_message_date": {"type": "string", "format": "date-time"},
                "created_at": {"type": "string", "format": "date-time"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}}
            }
        },
        "httpserver.onlineFriendsResponse": {
            "type": "object",
            "properties": {
                "online_friends": {"type": "array", "items": {"type": "string"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "dmcore API",
	Description:      "Direct-messaging conversation and presence core.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
