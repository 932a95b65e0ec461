package services

// Stable fault codes returned to clients.
const (
	CodeInvalidRequest        = "invalidrequest"
	CodeInvalidRoom           = "invalidroom"
	CodeRoomNotExists         = "roomnotexists"
	CodeParticipantNotBelong  = "participantnotbelong"
	CodeParticipantPending    = "participantpending"
	CodeUserNotInvited        = "usernotinvited"
	CodeNotRoomCreator        = "notroomcreator"
	CodeRoomNotOpen           = "roomnotopen"
	CodeAlreadyParticipant    = "alreadyparticipant"
	CodeCreatorNotRemovable   = "creatornotremovable"
	CodeParticipantNotExists  = "participantnotexists"
	CodeUnknownEntityType     = "unknownentitytype"
	CodeEntityNotExists       = "entitynotexists"
	CodeAttachmentNotExists   = "attachmentnotexists"
	CodeAttachmentStorage     = "attachmentstorage"
	CodeNotAuthorizedForRooms = "notauthorizedforroom"

	CodeUnableToCreateUser     = "unabletocreateuser"
	CodeUnableToUpdateRole     = "unabletoupdaterole"
	CodeUnableToCreateToken    = "unabletocreatetoken"
	CodeUnableToJoinTeam       = "unabletojointeam"
	CodeUnableToCreateChannel  = "unabletocreatechannel"
	CodeUnableToDeleteChannel  = "unabletodeletechannel"
	CodeUnableToJoin           = "unabletojoin"
	CodeUnableToRemoveMember   = "unabletoremovemember"
	CodeUnableToPostMessage    = "unabletopostmessage"
	CodeUnableToGetChannelPost = "unabletogetchannelposts"
)
