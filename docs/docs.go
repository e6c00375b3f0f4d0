// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with: swag init -g cmd/api/main.go -o docs
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
        "/auth/register": {"post": {"tags": ["auth"], "summary": "Register a new user", "responses": {"201": {"description": "Created"}}}},
        "/auth/login": {"post": {"tags": ["auth"], "summary": "Log in", "responses": {"200": {"description": "OK"}}}},
        "/users/me": {"get": {"security": [{"BearerAuth": []}], "tags": ["users"], "summary": "Get the current user", "responses": {"200": {"description": "OK"}}}},
        "/users/apply-creator": {"post": {"security": [{"BearerAuth": []}], "tags": ["users"], "summary": "Apply to become a creator", "responses": {"201": {"description": "Created"}}}},
        "/courses": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["courses"], "summary": "List published courses", "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["courses"], "summary": "Create a draft course", "responses": {"201": {"description": "Created"}}}
        },
        "/courses/{id}": {"get": {"security": [{"BearerAuth": []}], "tags": ["courses"], "summary": "Get a course with its lessons", "responses": {"200": {"description": "OK"}}}},
        "/courses/{id}/submit": {"post": {"security": [{"BearerAuth": []}], "tags": ["courses"], "summary": "Submit a draft for review", "responses": {"200": {"description": "OK"}}}},
        "/courses/{id}/revise": {"post": {"security": [{"BearerAuth": []}], "tags": ["courses"], "summary": "Start a revision of a rejected course", "responses": {"201": {"description": "Created"}}}},
        "/lessons": {"post": {"security": [{"BearerAuth": []}], "tags": ["lessons"], "summary": "Append a lesson to a draft course", "responses": {"201": {"description": "Created"}}}},
        "/lessons/course/{courseId}": {"get": {"security": [{"BearerAuth": []}], "tags": ["lessons"], "summary": "List the lessons of a course", "responses": {"200": {"description": "OK"}}}},
        "/lessons/{id}": {"get": {"security": [{"BearerAuth": []}], "tags": ["lessons"], "summary": "Get a lesson", "responses": {"200": {"description": "OK"}}}},
        "/enrollments": {"post": {"security": [{"BearerAuth": []}], "tags": ["enrollments"], "summary": "Enroll in a published course", "responses": {"200": {"description": "OK"}, "201": {"description": "Created"}}}},
        "/enrollments/progress": {"get": {"security": [{"BearerAuth": []}], "tags": ["enrollments"], "summary": "Get progress across all enrollments", "responses": {"200": {"description": "OK"}}}},
        "/enrollments/{id}": {"get": {"security": [{"BearerAuth": []}], "tags": ["enrollments"], "summary": "Get an enrollment", "responses": {"200": {"description": "OK"}}}},
        "/enrollments/course/{courseId}": {"get": {"security": [{"BearerAuth": []}], "tags": ["enrollments"], "summary": "Get the caller's enrollment in a course", "responses": {"200": {"description": "OK"}}}},
        "/enrollments/{id}/complete-lesson": {"post": {"security": [{"BearerAuth": []}], "tags": ["enrollments"], "summary": "Complete a lesson", "responses": {"200": {"description": "OK"}}}},
        "/admin/review/courses": {"get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "List courses for review", "responses": {"200": {"description": "OK"}}}},
        "/admin/review/courses/{id}/approve": {"patch": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Approve a submitted course", "responses": {"200": {"description": "OK"}}}},
        "/admin/review/courses/{id}/reject": {"patch": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Reject a submitted course", "responses": {"200": {"description": "OK"}}}},
        "/admin/review/creators": {"get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "List creator applications", "responses": {"200": {"description": "OK"}}}},
        "/admin/review/creators/{userId}/approve": {"patch": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Approve a creator application", "responses": {"200": {"description": "OK"}}}},
        "/admin/review/creators/{userId}/reject": {"patch": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Reject a creator application", "responses": {"200": {"description": "OK"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "SkillPath API",
	Description:      "Course catalog, enrollment and progression API",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
