package httpdto

type CreateChannelRequest struct {
	Name          string   `json:"name"`
	Purpose       string   `json:"purpose"`
	Header        string   `json:"header"`
	EntityType    string   `json:"entityType"`
	SituationType string   `json:"situationType"`
	Participants  []string `json:"participants"`
	ObjectIDs     []string `json:"objectIds"`
}

type InviteRequest struct {
	Users []string `json:"users"`
}

type ResolveRequest struct {
	Types  []string `json:"types"`
	Remark string   `json:"remark"`
}

type ReadResolvedResponse struct {
	Updated int64 `json:"updated"`
}
