package gov

import "sort"

// BuildVoteDetail aggregates a session and its preloaded votes. Sessions with
// TotalChoices == 0 are reported as a single implicit option at index 1.
func BuildVoteDetail(s *VoteSession) VoteDetailDTO {
	d := VoteDetailDTO{
		SessionID:        s.ID,
		GuildID:          s.GuildID,
		Kind:             s.Kind,
		Title:            s.Title,
		CreatorID:        s.CreatorID,
		ContextThreadID:  s.ContextThreadID,
		ContextChannelID: s.ContextChannelID,
		ObjectionID:      s.ObjectionID,
		Anonymous:        s.Anonymous,
		Realtime:         s.Realtime,
		Notify:           s.Notify,
		IsOpen:           s.Status == VoteSessionOpen,
		EndTime:          s.EndTime,
		TotalChoices:     s.TotalChoices,
	}
	if s.ContextMessageID != nil {
		d.ContextMessageID = *s.ContextMessageID
	}
	if s.VotingChannelMessageID != nil {
		d.VotingChannelMessageID = *s.VotingChannelMessageID
	}

	if s.TotalChoices == 0 {
		opt := OptionTally{ChoiceIndex: 1}
		for _, v := range s.Votes {
			countChoice(&opt, v.Choice)
		}
		d.Options = []OptionTally{opt}
	} else {
		texts := make(map[int]string, len(s.Options))
		for _, o := range s.Options {
			texts[o.ChoiceIndex] = o.ChoiceText
		}
		byIndex := make(map[int]*OptionTally, s.TotalChoices)
		d.Options = make([]OptionTally, s.TotalChoices)
		for i := range d.Options {
			d.Options[i] = OptionTally{ChoiceIndex: i + 1, Text: texts[i+1]}
			byIndex[i+1] = &d.Options[i]
		}
		for _, v := range s.Votes {
			opt, ok := byIndex[v.ChoiceIndex]
			if !ok {
				continue
			}
			countChoice(opt, v.Choice)
		}
	}

	for _, o := range d.Options {
		d.TotalApprove += o.Approve
		d.TotalReject += o.Reject
	}
	d.TotalVotes = d.TotalApprove + d.TotalReject

	if !s.Anonymous {
		d.Voters = make([]VoterEntry, 0, len(s.Votes))
		for _, v := range s.Votes {
			d.Voters = append(d.Voters, VoterEntry{UserID: v.UserID, ChoiceIndex: v.ChoiceIndex, Choice: v.Choice})
		}
		sort.Slice(d.Voters, func(i, j int) bool {
			if d.Voters[i].ChoiceIndex != d.Voters[j].ChoiceIndex {
				return d.Voters[i].ChoiceIndex < d.Voters[j].ChoiceIndex
			}
			return d.Voters[i].UserID < d.Voters[j].UserID
		})
	}
	return d
}

func countChoice(opt *OptionTally, choice int8) {
	switch choice {
	case ChoiceApprove:
		opt.Approve++
	case ChoiceReject:
		opt.Reject++
	default:
		return
	}
	opt.Total++
}
