package app

type InitiateUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	TotalSize   int64  `json:"total_size"`
	PartSize    int64  `json:"part_size"`
}

type InitiateUploadResponse struct {
	SessionId   string           `json:"session_id"`
	PartSize    int64            `json:"part_size"`
	TotalChunks int64            `json:"total_chunks"`
	Urls        map[int64]string `json:"urls"`
}

type CompleteUploadRequest struct {
	TotalChunks int64            `json:"total_chunks"`
	Etags       map[int64]string `json:"etags"`
}

type VideoResponse struct {
	Id          string `json:"id"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Status      string `json:"status,omitempty"`
	CreatedAt   int64  `json:"created_at,omitempty"`
}
