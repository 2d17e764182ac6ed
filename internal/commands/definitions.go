package commands

import "github.com/bwmarrin/discordgo"

func roomOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "room",
		Description: "ルームID",
		Required:    required,
	}
}

func userOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: "対象のプレイヤー (省略時は自分)",
	}
}

func GetCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         "poker",
			Description:  "ポーカーのルームとチップを管理します",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "create",
					Description: "ルームを作成して参加します",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "buy_in",
							Description: "バイイン額",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "rebuys",
							Description: "リバイを許可するか (既定: 許可)",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "join",
					Description: "ルームに参加します",
					Options: []*discordgo.ApplicationCommandOption{
						roomOption(true),
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "buy_in",
							Description: "バイイン額 (省略時はルームの既定値)",
						},
						userOption(),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "chips",
					Description: "チップ数を更新します",
					Options: []*discordgo.ApplicationCommandOption{
						roomOption(true),
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "value",
							Description: "現在のチップ数",
							Required:    true,
						},
						userOption(),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "rebuy",
					Description: "リバイを記録します",
					Options: []*discordgo.ApplicationCommandOption{
						roomOption(true),
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "amount",
							Description: "リバイ額",
							Required:    true,
						},
						userOption(),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "settle",
					Description: "ルームを精算します",
					Options:     []*discordgo.ApplicationCommandOption{roomOption(true)},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "ルームの状況を表示します (省略時は最新のルーム)",
					Options:     []*discordgo.ApplicationCommandOption{roomOption(false)},
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
