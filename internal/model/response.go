package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

type ListMeta struct {
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

type UserListResponse struct {
	Users []UserResponse `json:"users"`
	Meta  ListMeta       `json:"meta"`
}

type PostListResponse struct {
	Posts []PostResponse `json:"posts"`
	Meta  ListMeta       `json:"meta"`
}
